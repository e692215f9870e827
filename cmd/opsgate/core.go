package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opsgate/opsgate/audit"
	"github.com/opsgate/opsgate/config"
	"github.com/opsgate/opsgate/gateway"
	"github.com/opsgate/opsgate/guardrails"
	"github.com/opsgate/opsgate/providers"
	"github.com/opsgate/opsgate/resolver"
)

// core bundles the wired control-plane components for the CLI commands.
type core struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	guards   *guardrails.Guardrails
	audit    *audit.Log
	registry *providers.Registry
	gateway  *gateway.Gateway
}

// newCore loads configuration and wires the components. Provider
// adapters register into the returned registry at composition time;
// the core ships none itself.
func newCore(ctx context.Context) (*core, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	res := resolver.New(cfg)
	guards := guardrails.New(cfg.Policy, res)

	if policyDir != "" {
		gate := guardrails.NewRegoGate()
		if err := gate.LoadDir(ctx, policyDir); err != nil {
			return nil, fmt.Errorf("failed to load rego policies: %w", err)
		}
		guards.AttachRegoGate(gate)
	}

	log, err := audit.Open(auditDir, callerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}

	registry := providers.NewRegistry()

	return &core{
		cfg:      cfg,
		resolver: res,
		guards:   guards,
		audit:    log,
		registry: registry,
		gateway:  gateway.New(res, guards, log, registry),
	}, nil
}

func (c *core) close() {
	if err := c.audit.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close audit journal: %v\n", err)
	}
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
