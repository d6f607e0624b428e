package main

import (
	"os"

	"github.com/aretw0/settle/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
