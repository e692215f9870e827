package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/config"
	"github.com/opsgate/opsgate/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Catalog: config.Catalog{
			"galileo_notifications": {
				"prod": {
					"compute": {
						Provider: "aws",
						Kind:     "asg",
						Ref:      "galileo-notify-asg-prod",
						Region:   "us-east-1",
					},
					"database": {
						Provider: "aws",
						Kind:     "rds",
						Ref:      "galileo-notify-db-prod",
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
						Provider:      "azure",
						Kind:          "vmss",
						Refs:          []string{"billing-vm-1", "billing-vm-2"},
						ResourceGroup: "rg-billing",
					},
				},
			},
		},
		Providers: config.Providers{
			"aws": {
				DefaultRegion: "us-west-2",
				Accounts: map[string]string{
					"prod":    "111111111111",
					"staging": "222222222222",
				},
			},
			"azure": {
				DefaultRegion: "eastus",
				Subscriptions: map[string]string{
					"prod": "sub-prod",
				},
			},
		},
		Policy: &config.PolicyDoc{},
	}
}

func TestResolve(t *testing.T) {
	r := New(testConfig())
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "galileo_notifications", "prod", "compute")
	require.NoError(t, err)

	assert.Equal(t, "aws", resolved.Provider)
	assert.Equal(t, "asg", resolved.Kind)
	assert.Equal(t, "galileo-notify-asg-prod", resolved.Ref())
	assert.False(t, resolved.FanOut())
	// Explicit catalog region must not be overridden by the provider
	// default.
	assert.Equal(t, "us-east-1", resolved.Region)
	// Account was absent in the catalog, so defaults fill it.
	assert.Equal(t, "111111111111", resolved.Account)
}

func TestResolveDefaultsFillAbsentOnly(t *testing.T) {
	r := New(testConfig())

	resolved, err := r.Resolve(context.Background(), "galileo_notifications", "prod", "database")
	require.NoError(t, err)

	// No region in the catalog entry: default applies.
	assert.Equal(t, "us-west-2", resolved.Region)
	assert.Equal(t, "111111111111", resolved.Account)
}

func TestResolveAzureSubscriptionDefault(t *testing.T) {
	r := New(testConfig())

	resolved, err := r.Resolve(context.Background(), "billing_engine", "prod", "compute")
	require.NoError(t, err)

	assert.Equal(t, "sub-prod", resolved.Subscription)
	assert.Equal(t, "eastus", resolved.Region)
	assert.Equal(t, "rg-billing", resolved.ResourceGroup)
}

func TestResolveFanOut(t *testing.T) {
	r := New(testConfig())

	resolved, err := r.Resolve(context.Background(), "billing_engine", "prod", "compute")
	require.NoError(t, err)

	assert.True(t, resolved.FanOut())
	assert.Equal(t, []string{"billing-vm-1", "billing-vm-2"}, resolved.Refs)
	assert.Equal(t, "billing-vm-1", resolved.Ref())
}

func TestResolveDefaultResourceType(t *testing.T) {
	r := New(testConfig())

	resolved, err := r.Resolve(context.Background(), "galileo_notifications", "prod", "")
	require.NoError(t, err)
	assert.Equal(t, types.ResourceCompute, resolved.ResourceType)
}

func TestResolveNotFoundEnumeratesAlternatives(t *testing.T) {
	r := New(testConfig())
	ctx := context.Background()

	tests := []struct {
		name          string
		domain        string
		environment   string
		resourceType  string
		wantLevel     string
		wantAvailable []string
	}{
		{
			name:          "unknown domain",
			domain:        "nope",
			environment:   "prod",
			resourceType:  "compute",
			wantLevel:     "domain",
			wantAvailable: []string{"billing_engine", "galileo_notifications"},
		},
		{
			name:          "unknown environment",
			domain:        "galileo_notifications",
			environment:   "qa",
			resourceType:  "compute",
			wantLevel:     "environment",
			wantAvailable: []string{"prod", "staging"},
		},
		{
			name:          "unknown resource type",
			domain:        "galileo_notifications",
			environment:   "prod",
			resourceType:  "cache",
			wantLevel:     "resource_type",
			wantAvailable: []string{"compute", "database"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.domain, tt.environment, tt.resourceType)
			require.Error(t, err)

			var notFound *types.NotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, tt.wantLevel, notFound.Level)
			assert.Equal(t, tt.wantAvailable, notFound.Available)
		})
	}
}

func TestResolveByRefIsInverseOfCatalog(t *testing.T) {
	cfg := testConfig()
	r := New(cfg)

	for domain, envs := range cfg.Catalog {
		for env, resources := range envs {
			for resourceType, rc := range resources {
				for _, ref := range rc.References() {
					id, ok := r.ResolveByRef(rc.Provider, ref)
					require.True(t, ok, "ref %s/%s not indexed", rc.Provider, ref)
					assert.Equal(t, types.Identity{
						Domain:       domain,
						Environment:  env,
						ResourceType: resourceType,
					}, id)
				}
			}
		}
	}

	_, ok := r.ResolveByRef("aws", "not-a-real-ref")
	assert.False(t, ok)
}

func TestEnumerationHelpers(t *testing.T) {
	r := New(testConfig())

	assert.Equal(t, []string{"billing_engine", "galileo_notifications"}, r.ListDomains())
	assert.Equal(t, []string{"prod", "staging"}, r.ListEnvironments("galileo_notifications"))
	assert.Equal(t, []string{"compute", "database"}, r.ListResourceTypes("galileo_notifications", "prod"))

	// Unknown keys enumerate to empty, never error.
	assert.Empty(t, r.ListEnvironments("nope"))
	assert.Empty(t, r.ListResourceTypes("galileo_notifications", "nope"))
}

func TestResourcesForProvider(t *testing.T) {
	r := New(testConfig())

	aws := r.ResourcesForProvider("aws")
	assert.Len(t, aws, 3)

	azure := r.ResourcesForProvider("azure")
	assert.Len(t, azure, 2) // both fan-out refs indexed

	assert.Empty(t, r.ResourcesForProvider("gcp"))
}
