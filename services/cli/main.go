// synapse is the command-line client: it analyses a file locally or through
// the gateway and prints the suggestion with highlighting and a diff.
package main

import (
	"os"

	"github.com/synapse-ai/synapse/services/cli/internal"
)

func main() {
	if err := internal.Execute(); err != nil {
		os.Exit(1)
	}
}
