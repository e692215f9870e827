package main

import (
	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <domain> <environment> [resource-type]",
	Short: "Resolve a logical service identity to its physical resource",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	c, err := newCore(cmd.Context())
	if err != nil {
		return err
	}
	defer c.close()

	resourceType := types.ResourceCompute
	if len(args) == 3 {
		resourceType = args[2]
	}

	resolved, err := c.resolver.Resolve(cmd.Context(), args[0], args[1], resourceType)
	if err != nil {
		return err
	}

	return printJSON(resolved)
}
