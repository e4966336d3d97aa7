package main

import (
	"fmt"
	"os"

	"retire/cmd/retire-cli/cmd"
	"retire/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
