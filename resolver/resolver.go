// Package resolver maps logical service identities to physical
// resources across providers using the static service catalog plus
// per-provider defaults.
package resolver

import (
	"context"
	"sort"

	"github.com/opsgate/opsgate/config"
	"github.com/opsgate/opsgate/telemetry"
	"github.com/opsgate/opsgate/types"
)

type refKey struct {
	provider string
	ref      string
}

// Resolver resolves (domain, environment, resource_type) triples. The
// catalog and policy snapshots are read-only after construction, so a
// Resolver is safe for concurrent use without locking.
type Resolver struct {
	catalog   config.Catalog
	providers config.Providers
	policy    *config.PolicyDoc

	resourceIndex map[refKey]types.Identity
	providerIndex map[string][]types.IndexedResource

	logger *telemetry.Logger
}

// New builds a Resolver and its lookup indices from a loaded config
// snapshot.
func New(cfg *config.Config) *Resolver {
	policy := cfg.Policy
	if policy == nil {
		policy = &config.PolicyDoc{}
	}

	r := &Resolver{
		catalog:       cfg.Catalog,
		providers:     cfg.Providers,
		policy:        policy,
		resourceIndex: make(map[refKey]types.Identity),
		providerIndex: make(map[string][]types.IndexedResource),
		logger:        telemetry.NewLogger("resolver"),
	}
	r.buildIndices()
	return r
}

// buildIndices scans the catalog once to build the reverse index for
// inbound-event attribution and the per-provider inventory index. Every
// physical reference of a fan-out resource is indexed.
func (r *Resolver) buildIndices() {
	for domain, envs := range r.catalog {
		for env, resources := range envs {
			for resourceType, rc := range resources {
				id := types.Identity{Domain: domain, Environment: env, ResourceType: resourceType}
				for _, ref := range rc.References() {
					r.resourceIndex[refKey{rc.Provider, ref}] = id
					r.providerIndex[rc.Provider] = append(r.providerIndex[rc.Provider],
						types.IndexedResource{Identity: id, Ref: ref})
				}
			}
		}
	}

	for provider := range r.providerIndex {
		rows := r.providerIndex[provider]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Identity != rows[j].Identity {
				return rows[i].Identity.String() < rows[j].Identity.String()
			}
			return rows[i].Ref < rows[j].Ref
		})
	}
}

// Resolve maps a logical identity to its physical descriptor. Missing
// region/account/subscription/project fields are filled from provider
// defaults; explicit catalog values are never overridden. The result is
// built fresh per call and must not be mutated by callers.
func (r *Resolver) Resolve(ctx context.Context, domain, environment, resourceType string) (*types.ResolvedResource, error) {
	if resourceType == "" {
		resourceType = types.ResourceCompute
	}

	rc, err := r.lookup(domain, environment, resourceType)
	if err != nil {
		r.logger.LogResolveError(ctx, domain, environment, resourceType, err)
		return nil, err
	}

	resolved := &types.ResolvedResource{
		Identity: types.Identity{
			Domain:       domain,
			Environment:  environment,
			ResourceType: resourceType,
		},
		Provider:      rc.Provider,
		Kind:          rc.Kind,
		Refs:          append([]string(nil), rc.References()...),
		Region:        rc.Region,
		Account:       rc.Account,
		Subscription:  rc.Subscription,
		Project:       rc.Project,
		ResourceGroup: rc.ResourceGroup,
		Metadata:      rc.Metadata,
	}

	r.applyDefaults(resolved)

	r.logger.WithContext(ctx).Debug().
		Str("domain", domain).
		Str("environment", environment).
		Str("resource_type", resourceType).
		Str("provider", resolved.Provider).
		Int("refs", len(resolved.Refs)).
		Msg("resolved resource")

	return resolved, nil
}

// lookup walks the three catalog levels, failing with an error that
// enumerates the valid keys at the failing level.
func (r *Resolver) lookup(domain, environment, resourceType string) (config.ResourceConfig, error) {
	envs, ok := r.catalog[domain]
	if !ok {
		return config.ResourceConfig{}, &types.NotFoundError{
			Level:     "domain",
			Value:     domain,
			Available: r.ListDomains(),
		}
	}

	resources, ok := envs[environment]
	if !ok {
		return config.ResourceConfig{}, &types.NotFoundError{
			Level:     "environment",
			Value:     environment,
			Scope:     domain,
			Available: r.ListEnvironments(domain),
		}
	}

	rc, ok := resources[resourceType]
	if !ok {
		return config.ResourceConfig{}, &types.NotFoundError{
			Level:     "resource_type",
			Value:     resourceType,
			Scope:     domain + "/" + environment,
			Available: r.ListResourceTypes(domain, environment),
		}
	}

	return rc, nil
}

// applyDefaults fills absent fields from provider defaults. Strictly
// fill-if-absent: an explicit catalog value always wins.
func (r *Resolver) applyDefaults(resolved *types.ResolvedResource) {
	defaults, ok := r.providers[resolved.Provider]
	if !ok {
		return
	}

	if resolved.Region == "" {
		resolved.Region = defaults.DefaultRegion
	}

	switch resolved.Provider {
	case "aws":
		if resolved.Account == "" {
			resolved.Account = defaults.Accounts[resolved.Environment]
		}
	case "azure":
		if resolved.Subscription == "" {
			resolved.Subscription = defaults.Subscriptions[resolved.Environment]
		}
	case "gcp":
		if resolved.Project == "" {
			resolved.Project = defaults.Projects[resolved.Environment]
		}
	}
}

// ResolveByRef is the reverse lookup: which logical identity owns a raw
// provider reference. Used to attribute inbound provider events.
func (r *Resolver) ResolveByRef(provider, ref string) (types.Identity, bool) {
	id, ok := r.resourceIndex[refKey{provider, ref}]
	return id, ok
}

// ListDomains returns all catalog domains, sorted.
func (r *Resolver) ListDomains() []string {
	return r.catalog.Domains()
}

// ListEnvironments returns the environments configured for a domain.
// Unknown domains yield an empty slice, never an error.
func (r *Resolver) ListEnvironments(domain string) []string {
	envs := r.catalog[domain]
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListResourceTypes returns the resource types configured for a
// domain/environment. Unknown keys yield an empty slice.
func (r *Resolver) ListResourceTypes(domain, environment string) []string {
	resources := r.catalog[domain][environment]
	keys := make([]string, 0, len(resources))
	for k := range resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResourcesForProvider returns the provider-scoped inventory.
func (r *Resolver) ResourcesForProvider(provider string) []types.IndexedResource {
	return r.providerIndex[provider]
}
