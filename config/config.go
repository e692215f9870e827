package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ResourceConfig describes one physical resource behind a logical
// (domain, environment, resource_type) triple. Either Ref or Refs must
// be set; Refs is for fan-out resources such as a fleet of VMs.
type ResourceConfig struct {
	Provider      string            `yaml:"provider" validate:"required"`
	Kind          string            `yaml:"kind" validate:"required"`
	Ref           string            `yaml:"ref,omitempty"`
	Refs          []string          `yaml:"refs,omitempty"`
	Region        string            `yaml:"region,omitempty"`
	Account       string            `yaml:"account,omitempty"`
	Subscription  string            `yaml:"subscription,omitempty"`
	Project       string            `yaml:"project,omitempty"`
	ResourceGroup string            `yaml:"resource_group,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
}

// References returns the physical reference list, normalizing the
// single-ref and multi-ref forms.
func (rc ResourceConfig) References() []string {
	if len(rc.Refs) > 0 {
		return rc.Refs
	}
	if rc.Ref != "" {
		return []string{rc.Ref}
	}
	return nil
}

// Catalog maps domain -> environment -> resource type -> config. Loaded
// once, immutable for the process lifetime.
type Catalog map[string]map[string]map[string]ResourceConfig

// Validate fails fast on structurally invalid catalog entries so bad
// documents are rejected at load rather than at first resolve.
func (c Catalog) Validate() error {
	for domain, envs := range c {
		for env, resources := range envs {
			for resourceType, rc := range resources {
				if err := validate.Struct(rc); err != nil {
					return fmt.Errorf("catalog entry %s/%s/%s: %w", domain, env, resourceType, err)
				}
				if len(rc.References()) == 0 {
					return fmt.Errorf("catalog entry %s/%s/%s: ref or refs is required", domain, env, resourceType)
				}
			}
		}
	}
	return nil
}

// ProviderDefaults holds per-provider fallback values. They fill fields
// a catalog entry omits and never override an explicit value.
type ProviderDefaults struct {
	DefaultRegion string            `yaml:"default_region,omitempty"`
	Accounts      map[string]string `yaml:"accounts,omitempty"`
	Subscriptions map[string]string `yaml:"subscriptions,omitempty"`
	Projects      map[string]string `yaml:"projects,omitempty"`
}

// Providers maps provider name to its defaults.
type Providers map[string]ProviderDefaults

// Config is the full loaded configuration snapshot: catalog, provider
// defaults, and policy. Read-only after load; reload-on-change is not
// supported.
type Config struct {
	Catalog   Catalog
	Providers Providers
	Policy    *PolicyDoc
}

// Load reads domains.yml, providers.yml and policies.yml from dir.
// The policy document is optional; the other two are not.
func Load(dir string) (*Config, error) {
	catalog, err := LoadCatalog(filepath.Join(dir, "domains.yml"))
	if err != nil {
		return nil, err
	}

	providers, err := LoadProviders(filepath.Join(dir, "providers.yml"))
	if err != nil {
		return nil, err
	}

	policy, err := LoadPolicy(filepath.Join(dir, "policies.yml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		policy = &PolicyDoc{}
	}

	return &Config{Catalog: catalog, Providers: providers, Policy: policy}, nil
}

// LoadCatalog loads and validates the service catalog.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	return catalog, nil
}

// LoadProviders loads the provider-defaults table.
func LoadProviders(path string) (Providers, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read provider defaults: %w", err)
	}

	var providers Providers
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("failed to parse provider defaults: %w", err)
	}

	return providers, nil
}

// LoadPolicy loads and validates the policy document. A missing file is
// returned as os.IsNotExist so callers can treat policy as optional.
func LoadPolicy(path string) (*PolicyDoc, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, err
	}

	var doc PolicyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &doc, nil
}

// sortedKeys is shared by error reporting and enumeration helpers so
// output is deterministic.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Domains returns the catalog's domain names, sorted.
func (c Catalog) Domains() []string { return sortedKeys(c) }
