// Command pdfrag indexes PDF documents into a vector collection and answers
// questions over them with optional LLM generation. It exposes a CLI (via
// Cobra), an HTTP API, an MCP stdio server and a retrieval evaluation harness.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfrag/cmd/pdfrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
