// Command htree-client implements spec.md §6.6's CLI: push, get, and
// proof subcommands against a running htree-server, each taking
// <server> [port=2636]. The client verifies every server response before
// trusting it and keeps roots.json up to date in its working directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "htree-client",
		Short: "Client for the htree verifiable append-only blob store",
	}

	root.AddCommand(newPushCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newProofCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
