package main

import (
	"os"

	"snaprot/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
