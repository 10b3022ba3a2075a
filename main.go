package main

import (
	"os"

	"github.com/tahsinrahman/ipagg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
