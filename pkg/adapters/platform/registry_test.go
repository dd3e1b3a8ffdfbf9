package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchpad/connector-engine/pkg/models"
)

type stubAdapter struct {
	kind models.PlatformKind
}

func (s *stubAdapter) Kind() models.PlatformKind { return s.kind }

func (s *stubAdapter) ValidateConnection(ctx context.Context, config, secret map[string]any) (*ValidationResult, error) {
	return &ValidationResult{Valid: true}, nil
}

func (s *stubAdapter) Sync(ctx context.Context, config, secret map[string]any) (*SyncResult, error) {
	return &SyncResult{}, nil
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Registration{
		Info:    Info{Kind: models.PlatformSupabase, DisplayName: "Supabase"},
		Adapter: &stubAdapter{kind: models.PlatformSupabase},
	})

	adapter, ok := registry.Get(models.PlatformSupabase)
	require.True(t, ok)
	assert.Equal(t, models.PlatformSupabase, adapter.Kind())

	_, ok = registry.Get(models.PlatformVercel)
	assert.False(t, ok)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	first := &stubAdapter{kind: models.PlatformVercel}
	second := &stubAdapter{kind: models.PlatformVercel}

	registry.Register(Registration{Info: Info{Kind: models.PlatformVercel}, Adapter: first})
	registry.Register(Registration{Info: Info{Kind: models.PlatformVercel}, Adapter: second})

	adapter, ok := registry.Get(models.PlatformVercel)
	require.True(t, ok)
	assert.Same(t, second, adapter)
	assert.Len(t, registry.Registered(), 1)
}

func TestRegistryRegistered(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Registered())

	registry.Register(Registration{
		Info:    Info{Kind: models.PlatformSupabase, DisplayName: "Supabase", Description: "desc"},
		Adapter: &stubAdapter{kind: models.PlatformSupabase},
	})
	registry.Register(Registration{
		Info:    Info{Kind: models.PlatformOpenAPI, DisplayName: "OpenAPI Service"},
		Adapter: &stubAdapter{kind: models.PlatformOpenAPI},
	})

	infos := registry.Registered()
	assert.Len(t, infos, 2)

	kinds := map[models.PlatformKind]bool{}
	for _, info := range infos {
		kinds[info.Kind] = true
	}
	assert.True(t, kinds[models.PlatformSupabase])
	assert.True(t, kinds[models.PlatformOpenAPI])
}
