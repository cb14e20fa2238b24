// cv is the ChatVault command line: a local, searchable archive of AI chat
// conversations with rate-limited sync and rule-based categorization.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
