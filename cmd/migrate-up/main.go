// Command migrate-up applies every pending schema migration.
package main

import (
	"os"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/admincli"
)

func main() {
	os.Exit(admincli.MigrateUp(admincli.EnvFromOS(), os.Args[1:]))
}
