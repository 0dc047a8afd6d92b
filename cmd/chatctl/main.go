package main

import (
	"fmt"
	"os"

	"github.com/Tyrowin/chatwave/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
		os.Exit(1)
	}
}
