package main

import (
	"os"

	"github.com/parlorchat/parlor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
