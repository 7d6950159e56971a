package main

import (
	"log"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
