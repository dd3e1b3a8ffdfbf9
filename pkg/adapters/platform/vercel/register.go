package vercel

import (
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// Register adds the Vercel adapter to the registry.
func Register(registry *platform.Registry, logger *zap.Logger) {
	registry.Register(platform.Registration{
		Info: platform.Info{
			Kind:        models.PlatformVercel,
			DisplayName: "Vercel",
			Description: "Mirror projects and deployments from a Vercel account",
		},
		Adapter: New(logger),
	})
}
