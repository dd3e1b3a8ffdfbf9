package openapi

import (
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/models"
)

// Register adds the OpenAPI adapter to the registry.
func Register(registry *platform.Registry, logger *zap.Logger) {
	registry.Register(platform.Registration{
		Info: platform.Info{
			Kind:        models.PlatformOpenAPI,
			DisplayName: "OpenAPI Service",
			Description: "Mirror endpoints, schemas, and security schemes from an OpenAPI document",
		},
		Adapter: New(logger),
	})
}
