package main

import (
	"os"

	"github.com/Thyanin/aleth/cmd/alethboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
