package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tesserad",
		Short: "Tessera daemon and CLI",
		Long:  "Tessera daemon for running the retrieval API server and managing tenants",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.TenantCmd())
	rootCmd.AddCommand(cli.SessionCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
