// Package main is the entry point for the Alumet measurement pipeline agent.
package main

import (
	"fmt"
	"os"

	"github.com/alumet-io/alumet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
