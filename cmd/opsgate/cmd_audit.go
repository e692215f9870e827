package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/audit"
)

var (
	auditWindow    time.Duration
	auditOperation string
	auditFile      string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit journals",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <journal-file>",
	Short: "Print entries from a session journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)

	auditTailCmd.Flags().DurationVar(&auditWindow, "window", time.Hour, "Trailing time window")
	auditTailCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation name")
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	auditFile = args[0]
	cutoff := time.Now().Add(-auditWindow)

	var entries []audit.Entry
	err := audit.Scan(auditFile, func(e audit.Entry) {
		if e.Timestamp.Before(cutoff) {
			return
		}
		if auditOperation != "" && e.Operation != auditOperation {
			return
		}
		entries = append(entries, e)
	})
	if err != nil {
		return fmt.Errorf("failed to scan journal: %w", err)
	}

	return printJSON(entries)
}
