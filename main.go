package main

import (
	"os"

	"github.com/qtdlabs/muletrace/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		os.Exit(1)
	}
}
