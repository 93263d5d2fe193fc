// Command oneiros records dream narrations and turns them into interpreted,
// illustrated journal entries.
//
// Usage:
//
//	oneiros serve                 run the HTTP API
//	oneiros interpret <audio>     process one recording from a file
//	oneiros version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
