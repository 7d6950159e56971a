// Command clear-sessions deletes every server-side session.
package main

import (
	"context"
	"os"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/admincli"
)

func main() {
	os.Exit(admincli.ClearSessions(context.Background(), admincli.EnvFromOS(), os.Args[1:]))
}
