package main

import (
	"os"

	"github.com/wonny/bastion/backend/cmd/bastion/commands"
)

// main is the entry point for the Bastion CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/bastion [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
