package main

import (
	"os"

	"github.com/wonny/aegis-screener/cmd/screener/commands"
)

// main is the entry point for the screener CLI
// ⭐ go run ./cmd/screener [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
