package main

import (
	"fmt"
	"os"

	"github.com/civium-ai/custodia/internal/cli"
	"github.com/civium-ai/custodia/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "custodiad",
		Short: "Custodia daemon and CLI",
		Long:  "Custodia daemon for running the API server and managing tenants, credentials, and audit chains",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.TenantCmd())
	rootCmd.AddCommand(admin.CredentialCmd())
	rootCmd.AddCommand(admin.VerifyCmd())
	rootCmd.AddCommand(admin.ExportCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
