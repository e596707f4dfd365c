package main

import (
	"os"

	"github.com/twinview/twinview/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
