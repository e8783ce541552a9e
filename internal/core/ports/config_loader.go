package ports

import "go.trai.ch/bake/internal/core/domain"

// ConfigLoader defines the interface for loading the build definition.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the buildfile at path. A relative path is resolved against dir.
	Load(dir, path string) (*domain.Buildfile, error)
}
