// Command vaultd runs a single vault of the storage network: it wires
// every handler package of spec §2 into a vaultservice.Orchestrator and
// exposes it over httpapi, following the cobra command-tree shape of
// Synnergy's cmd/synnergy/main.go in place of the teacher's flag-based
// rubin-node CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "vaultd",
		Short: "vault-side core of the content-addressed storage network",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(keygenCmd())
	root.AddCommand(syncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
