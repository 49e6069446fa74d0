package main

import (
	"fmt"
	"os"

	"relaygate/internal/config"
)

func main() {
	loader := config.NewLoader()
	root := NewRootCommand(loader)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
