package guardrails

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsgate/opsgate/telemetry"
)

// RegoGate evaluates operator-supplied Rego policies against proposed
// operations, as an extra gate in front of the built-in checks. Rules
// live under the data.opsgate namespace and bind "decision" ("allow" or
// "deny") and optionally "reason".
type RegoGate struct {
	queries map[string]rego.PreparedEvalQuery
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

// GateInput is the document a policy is evaluated against.
type GateInput struct {
	Operation   string         `json:"operation"`
	Domain      string         `json:"domain,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewRegoGate creates an empty gate. A gate with no loaded policies
// allows everything.
func NewRegoGate() *RegoGate {
	return &RegoGate{
		queries: make(map[string]rego.PreparedEvalQuery),
		logger:  telemetry.NewLogger("rego-gate"),
		tracer:  otel.Tracer("rego-gate"),
	}
}

// LoadPolicy compiles and registers a Rego policy.
func (g *RegoGate) LoadPolicy(ctx context.Context, name, source string) error {
	ctx, span := g.tracer.Start(ctx, "rego_gate.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.opsgate"),
		rego.Module(name, source),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	g.queries[name] = prepared

	g.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("gate policy loaded")

	return nil
}

// LoadDir loads every *.rego file under dir.
func (g *RegoGate) LoadDir(ctx context.Context, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}

		name := strings.TrimSuffix(filepath.Base(path), ".rego")
		return g.LoadPolicy(ctx, name, string(content))
	})
}

// Evaluate runs all loaded policies against input. Any single deny
// wins; its reason is returned.
func (g *RegoGate) Evaluate(ctx context.Context, input GateInput) (allowed bool, reason string, err error) {
	ctx, span := g.tracer.Start(ctx, "rego_gate.evaluate",
		trace.WithAttributes(
			attribute.String("operation", input.Operation),
			attribute.String("environment", input.Environment)))
	defer span.End()

	for name, query := range g.queries {
		results, evalErr := query.Eval(ctx, rego.EvalInput(input))
		if evalErr != nil {
			return false, "", fmt.Errorf("policy %s: %w", name, evalErr)
		}

		decision, policyReason := parseGateResults(results)
		if decision == "deny" {
			if policyReason == "" {
				policyReason = fmt.Sprintf("denied by policy %s", name)
			}
			g.logger.WithContext(ctx).Info().
				Str("policy_name", name).
				Str("operation", input.Operation).
				Str("reason", policyReason).
				Msg("gate policy denied operation")
			return false, policyReason, nil
		}
	}

	return true, "", nil
}

// parseGateResults extracts the decision and reason bindings from an
// evaluation result set. Policies shape their output at runtime, so the
// values arrive as generic maps.
func parseGateResults(results rego.ResultSet) (decision, reason string) {
	for _, res := range results {
		for _, expr := range res.Expressions {
			doc, ok := expr.Value.(map[string]interface{})
			if !ok {
				continue
			}
			// Rules may sit at the namespace root or one package level
			// below it.
			if d, r, found := gateFields(doc); found {
				return d, r
			}
			for _, nested := range doc {
				if sub, ok := nested.(map[string]interface{}); ok {
					if d, r, found := gateFields(sub); found {
						return d, r
					}
				}
			}
		}
	}
	return "", ""
}

func gateFields(doc map[string]interface{}) (decision, reason string, found bool) {
	d, ok := doc["decision"].(string)
	if !ok {
		return "", "", false
	}
	r, _ := doc["reason"].(string)
	return d, r, true
}
