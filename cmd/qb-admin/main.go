// Command qb-admin is the operator tool for sessions, users and migrations.
package main

import (
	"fmt"
	"os"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/admincli"
)

func main() {
	if err := admincli.App(admincli.EnvFromOS()).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "qb-admin: %v\n", err)
		os.Exit(1)
	}
}
