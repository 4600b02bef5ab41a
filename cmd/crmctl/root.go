package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const apiBase = "/api/crm/v1"

var (
	serverURL string
	outputFmt string
	namespace string
	user      string
	kindFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "CLI for the CRM transition server",
	Long: `crmctl moves CRM subjects through their state catalogs and inspects
the audit history the server records for every change.

Subjects are pipeline deals by default; use --kind contract for contracts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch kindFlag {
		case "pipeline", "contract":
			return nil
		}
		return fmt.Errorf("unknown kind %q (expected pipeline or contract)", kindFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "CRM server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Tenant namespace (default: from STELLA_NAMESPACE env)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "Acting user recorded in history (default: from STELLA_USER env)")
	rootCmd.PersistentFlags().StringVarP(&kindFlag, "kind", "k", "pipeline", "Subject kind: pipeline or contract")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statesCmd)
	rootCmd.AddCommand(subjectCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(reasonsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(voidCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(staleCmd)
	rootCmd.AddCommand(auditCmd)
}

// resolvedNamespace returns the effective namespace.
// Priority: --namespace flag > STELLA_NAMESPACE env var > "".
func resolvedNamespace() string {
	if namespace != "" {
		return namespace
	}
	return os.Getenv("STELLA_NAMESPACE")
}

// resolvedUser returns the effective acting user.
// Priority: --user flag > STELLA_USER env var > "".
func resolvedUser() string {
	if user != "" {
		return user
	}
	return os.Getenv("STELLA_USER")
}

// kindPath returns the API prefix of the selected subject kind.
func kindPath() string {
	return apiBase + "/" + kindFlag
}
