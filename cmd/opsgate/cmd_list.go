package main

import (
	"github.com/spf13/cobra"
)

var listProvider string

var listCmd = &cobra.Command{
	Use:   "list [domain [environment]]",
	Short: "Enumerate domains, environments or resource types",
	Long: `Enumerate the service catalog.

With no arguments, lists domains. With a domain, lists its
environments. With a domain and environment, lists resource types.
With --provider, lists the provider's full inventory instead.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listProvider, "provider", "", "List all resources for a provider")
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newCore(cmd.Context())
	if err != nil {
		return err
	}
	defer c.close()

	if listProvider != "" {
		return printJSON(c.resolver.ResourcesForProvider(listProvider))
	}

	switch len(args) {
	case 0:
		return printJSON(c.resolver.ListDomains())
	case 1:
		return printJSON(c.resolver.ListEnvironments(args[0]))
	default:
		return printJSON(c.resolver.ListResourceTypes(args[0], args[1]))
	}
}
