package main

import (
	"os"

	"github.com/kioskworks/kioskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
