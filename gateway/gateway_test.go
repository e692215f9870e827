package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/audit"
	"github.com/opsgate/opsgate/config"
	"github.com/opsgate/opsgate/guardrails"
	"github.com/opsgate/opsgate/providers"
	"github.com/opsgate/opsgate/resolver"
	"github.com/opsgate/opsgate/types"
)

// fakeAdapter records dispatches and returns a canned result.
type fakeAdapter struct {
	name    string
	calls   []string
	lastRef string
	err     error
}

func (f *fakeAdapter) Dispatch(_ context.Context, verb string, target types.ResolvedResource, _ map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, verb)
	f.lastRef = target.Ref()
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{
		"success":      true,
		"status":       "done",
		"secret_token": "do-not-journal",
	}, nil
}

func (f *fakeAdapter) Name() string { return f.name }

func gatewayConfig() *config.Config {
	confirmTrue := true
	max := 50
	return &config.Config{
		Catalog: config.Catalog{
			"galileo_notifications": {
				"prod": {
					"compute": {
						Provider: "aws",
						Kind:     "asg",
						Ref:      "galileo-notify-asg-prod",
					},
				},
				"staging": {
					"compute": {
						Provider: "aws",
						Kind:     "asg",
						Ref:      "galileo-notify-asg-staging",
					},
				},
			},
			"billing_engine": {
				"prod": {
					"compute": {
						Provider: "azure",
						Kind:     "vmss",
						Ref:      "billing-vmss-prod",
					},
				},
			},
		},
		Providers: config.Providers{
			"aws": {DefaultRegion: "us-west-2"},
		},
		Policy: &config.PolicyDoc{
			Environments: map[string]config.EnvironmentPolicy{
				"prod": {Fragment: config.Fragment{
					ConfirmationsRequired:  &confirmTrue,
					ConfirmationOperations: []string{types.OpScale, types.OpDeploy},
					MaxScaleSize:           &max,
				}},
			},
			OperationModes: map[string]config.ModePolicy{
				"operator": {AllowedVerbs: config.VerbSet{All: true}},
				"readonly": {AllowedVerbs: config.VerbSet{Verbs: []string{types.OpStatus, types.OpList}}},
			},
		},
	}
}

const timeWindow = time.Hour

func timeRange(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	now := time.Now()
	return now.Add(-timeWindow), now.Add(timeWindow)
}

type fixture struct {
	gateway *Gateway
	guards  *guardrails.Guardrails
	audit   *audit.Log
	aws     *fakeAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := gatewayConfig()
	res := resolver.New(cfg)
	guards := guardrails.New(cfg.Policy, res)

	log, err := audit.Open(t.TempDir(), "oncall")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	aws := &fakeAdapter{name: "aws"}
	registry := providers.NewRegistry()
	registry.Register("aws", func() (providers.Adapter, error) { return aws, nil })

	return &fixture{
		gateway: New(res, guards, log, registry),
		guards:  guards,
		audit:   log,
		aws:     aws,
	}
}

func TestExecuteConfirmationRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "prod",
		TargetCapacity: 5,
	}

	// First attempt: confirmation demanded, nothing dispatched.
	_, err := f.gateway.Execute(ctx, req)
	require.Error(t, err)

	var needConfirm *types.ConfirmationRequiredError
	require.True(t, errors.As(err, &needConfirm))
	require.NotEmpty(t, needConfirm.Token)
	assert.Empty(t, f.aws.calls)

	// Resubmission with the token goes through.
	req.ConfirmToken = needConfirm.Token
	result, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{types.OpScale}, f.aws.calls)
	assert.Equal(t, "galileo-notify-asg-prod", f.aws.lastRef)
	assert.Equal(t, true, result.Output["success"])

	// No stray tokens left pending after the round trip.
	assert.Equal(t, 0, f.guards.PendingCount())
}

func TestExecuteUnguardedEnvironmentSkipsConfirmation(t *testing.T) {
	f := newFixture(t)

	result, err := f.gateway.Execute(context.Background(), Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "staging",
		TargetCapacity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "galileo-notify-asg-staging", result.Resolved.Ref())
}

func TestExecuteInvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "prod",
		TargetCapacity: 5,
		ConfirmToken:   "AAA-AAA",
	})
	require.Error(t, err)

	var invalid *types.ConfirmationInvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "AAA-AAA", invalid.Token)
	assert.Empty(t, f.aws.calls)

	report := f.audit.ComplianceReport(timeRange(t))
	require.Len(t, report.SecurityEvents, 1)
	assert.Equal(t, "invalid_confirmation_token", report.SecurityEvents[0].SecurityEvent)
}

func TestExecuteScaleBeyondMaxDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "prod",
		TargetCapacity: 51,
	})
	require.Error(t, err)

	var denied *types.PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Contains(t, denied.Reason, "exceeds maximum 50")
	assert.Empty(t, f.aws.calls)
}

func TestExecuteModeDeniesVerb(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "staging",
		TargetCapacity: 3,
		Mode:           "readonly",
	})
	require.Error(t, err)

	var denied *types.PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Empty(t, f.aws.calls)
}

func TestExecuteModeDenialDoesNotBurnToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := Request{
		Verb:           types.OpScale,
		Domain:         "galileo_notifications",
		Environment:    "prod",
		TargetCapacity: 5,
	}

	_, err := f.gateway.Execute(ctx, req)
	var needConfirm *types.ConfirmationRequiredError
	require.True(t, errors.As(err, &needConfirm))

	// Resubmitting the valid token under a mode that denies the verb
	// fails at the verb gate without consuming the token.
	req.ConfirmToken = needConfirm.Token
	req.Mode = "readonly"
	_, err = f.gateway.Execute(ctx, req)

	var denied *types.PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, 1, f.guards.PendingCount())

	// The same token still redeems on a permitted resubmission.
	req.Mode = ""
	result, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{types.OpScale}, f.aws.calls)
	assert.NotNil(t, result)
}

func TestExecuteProviderUnavailable(t *testing.T) {
	f := newFixture(t)

	// billing_engine resolves to azure, which is not registered.
	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:        types.OpStatus,
		Domain:      "billing_engine",
		Environment: "prod",
	})
	require.Error(t, err)

	var unavailable *types.ProviderUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "azure", unavailable.Provider)
}

func TestExecuteResolveFailureIsJournaled(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:        types.OpStatus,
		Domain:      "nope",
		Environment: "prod",
	})
	require.Error(t, err)

	var notFound *types.NotFoundError
	require.True(t, errors.As(err, &notFound))

	report := f.audit.ComplianceReport(timeRange(t))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, types.OpStatus, report.Failures[0].Operation)
}

func TestExecuteIsolateRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := Request{
		Verb:        types.OpIsolate,
		Domain:      "galileo_notifications",
		Environment: "prod",
		Provider:    "aws",
		Hostname:    "web-01",
	}

	_, err := f.gateway.Execute(ctx, req)
	require.Error(t, err)

	var needConfirm *types.ConfirmationRequiredError
	require.True(t, errors.As(err, &needConfirm))

	req.ConfirmToken = needConfirm.Token
	result, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "web-01", result.Resolved.Ref())
	assert.Equal(t, "endpoint", result.Resolved.Kind)
	assert.Equal(t, []string{types.OpIsolate}, f.aws.calls)
}

func TestExecuteDispatchErrorJournaled(t *testing.T) {
	f := newFixture(t)
	f.aws.err = errors.New("throttled")

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:        types.OpStatus,
		Domain:      "galileo_notifications",
		Environment: "staging",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	report := f.audit.ComplianceReport(timeRange(t))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "throttled", report.Failures[0].Error)
}

func TestExecuteAuditSummaryIsRedacted(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.Execute(context.Background(), Request{
		Verb:        types.OpStatus,
		Domain:      "galileo_notifications",
		Environment: "staging",
	})
	require.NoError(t, err)

	var success *audit.Entry
	entries, err := f.audit.RecentOperations(timeWindow, "")
	require.NoError(t, err)
	for i := range entries {
		if entries[i].Status == audit.StatusSuccess {
			success = &entries[i]
		}
	}
	require.NotNil(t, success)

	assert.Equal(t, true, success.ResultSummary["success"])
	assert.NotContains(t, success.ResultSummary, "secret_token")
}
