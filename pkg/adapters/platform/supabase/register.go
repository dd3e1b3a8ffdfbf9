package supabase

import (
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// Register adds the Supabase adapter to the registry.
func Register(registry *platform.Registry, logger *zap.Logger) {
	registry.Register(platform.Registration{
		Info: platform.Info{
			Kind:        models.PlatformSupabase,
			DisplayName: "Supabase",
			Description: "Mirror database tables and storage buckets from a Supabase project",
		},
		Adapter: New(logger),
	})
}
