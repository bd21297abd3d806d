// Package main provides the lingopod CLI.
//
// Usage:
//
//	lingopod [flags] <command> [args]
//
// Commands:
//
//	session - Run or monitor a live voice practice session
//	archive - Inspect and manage exported session archives
//	config  - Configuration management
//
// Configuration lives in ~/.lingopod/ and supports multiple contexts,
// managed with the 'lingopod config' commands.
package main

import (
	"fmt"
	"os"

	"github.com/lingopod/lingopod/cmd/lingopod/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
