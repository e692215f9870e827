package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configDir  string
	auditDir   string
	callerUser string
	policyDir  string

	rootCmd = &cobra.Command{
		Use:   "opsgate",
		Short: "Infrastructure operation gateway",
		Long: `Opsgate - Infrastructure operation gateway

Opsgate maps logical service identities to physical resources across
providers, evaluates every mutating request against environment-scoped
safety policy, manages single-use confirmation tokens for risky
operations, and keeps an append-only audit trail of everything it does.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "Configuration directory (domains.yml, providers.yml, policies.yml)")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", "logs", "Audit journal directory")
	rootCmd.PersistentFlags().StringVar(&callerUser, "user", defaultUser(), "Caller identity recorded in the audit trail")
	rootCmd.PersistentFlags().StringVar(&policyDir, "rego-policies", "", "Optional directory of Rego gate policies")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
