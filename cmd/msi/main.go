// Command msi is the command line front end for member search indexes:
// validating, generating and rendering index files, searching them locally,
// serving them to assistants over MCP and managing ingestion API keys.
package main

import (
	"os"

	"github.com/3worlds/aot/cmd/msi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
