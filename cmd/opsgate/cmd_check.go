package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/types"
)

var (
	checkCapacity int
	checkVersion  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a proposed operation against guardrails",
}

var checkScaleCmd = &cobra.Command{
	Use:   "scale <domain> <environment>",
	Short: "Check a scale operation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()
		return printVerdict(c.guards.CheckScale(cmd.Context(), args[0], args[1], checkCapacity))
	},
}

var checkRestartCmd = &cobra.Command{
	Use:   "restart <domain> <environment>",
	Short: "Check a restart operation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()
		return printVerdict(c.guards.CheckRestart(cmd.Context(), args[0], args[1]))
	},
}

var checkDeployCmd = &cobra.Command{
	Use:   "deploy <domain> <environment>",
	Short: "Check a deploy operation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()
		return printVerdict(c.guards.CheckDeploy(cmd.Context(), args[0], args[1], checkVersion))
	},
}

var checkIsolateCmd = &cobra.Command{
	Use:   "isolate <hostname>",
	Short: "Check an endpoint isolation (always requires confirmation)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()
		return printVerdict(c.guards.CheckIsolate(cmd.Context(), args[0]))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkScaleCmd, checkRestartCmd, checkDeployCmd, checkIsolateCmd)

	checkScaleCmd.Flags().IntVar(&checkCapacity, "capacity", 0, "Target capacity")
	_ = checkScaleCmd.MarkFlagRequired("capacity")
	checkDeployCmd.Flags().StringVar(&checkVersion, "version", "", "Version to deploy")
	_ = checkDeployCmd.MarkFlagRequired("version")
}

func printVerdict(v types.Verdict) error {
	switch {
	case v.Allowed():
		fmt.Println("allowed")
	case v.RequiresConfirmation():
		fmt.Printf("confirmation required: %s\n", v.Reason())
	default:
		fmt.Printf("denied: %s\n", v.Reason())
	}
	return nil
}
