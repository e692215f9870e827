package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/opsgate/opsgate/types"
)

type nullAdapter struct{ name string }

func (n *nullAdapter) Dispatch(context.Context, string, types.ResolvedResource, map[string]any) (map[string]any, error) {
	return map[string]any{"success": true}, nil
}

func (n *nullAdapter) Name() string { return n.name }

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	built := 0
	r.Register("aws", func() (Adapter, error) {
		built++
		return &nullAdapter{name: "aws"}, nil
	})

	a, err := r.Get("aws")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a.Name() != "aws" {
		t.Errorf("Name() = %q", a.Name())
	}

	// Second Get reuses the instance.
	if _, err := r.Get("aws"); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if built != 1 {
		t.Errorf("factory ran %d times, want 1", built)
	}
}

func TestRegistryUnregisteredProvider(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("gcp")
	var unavailable *types.ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want ProviderUnavailableError", err)
	}
	if unavailable.Provider != "gcp" {
		t.Errorf("Provider = %q", unavailable.Provider)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	r.Register("aws", func() (Adapter, error) {
		return nil, errors.New("no credentials")
	})

	if _, err := r.Get("aws"); err == nil {
		t.Fatal("expected factory error")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("aws", func() (Adapter, error) { return &nullAdapter{name: "aws"}, nil })
	r.Register("azure", func() (Adapter, error) { return &nullAdapter{name: "azure"}, nil })

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List() = %v, want two providers", names)
	}
}
