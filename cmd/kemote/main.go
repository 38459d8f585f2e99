package main

import (
	"os"

	"github.com/dshills/kemote/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
