package main

import (
	"os"

	"servo-backup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
