// Command migrate-down reverts the most recent schema migration.
package main

import (
	"os"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/admincli"
)

func main() {
	os.Exit(admincli.MigrateDown(admincli.EnvFromOS(), os.Args[1:]))
}
