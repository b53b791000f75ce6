// Command docqa answers questions about uploaded documents. It provides a
// CLI (via Cobra) for local ingestion and queries and an HTTP server exposing
// the same operations as a JSON API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
