package main

import (
	"os"

	"github.com/mroshb/quiz_bot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
