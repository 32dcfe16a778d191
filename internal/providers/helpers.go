package providers

import (
	"fmt"

	"github.com/vitrinehq/vitrine/internal/providers/clipboard"
	"github.com/vitrinehq/vitrine/internal/providers/content"
	httpprovider "github.com/vitrinehq/vitrine/internal/providers/http"
	mathprovider "github.com/vitrinehq/vitrine/internal/providers/math"
	"github.com/vitrinehq/vitrine/internal/providers/storage"
	"github.com/vitrinehq/vitrine/internal/providers/system"
	"github.com/vitrinehq/vitrine/internal/service"
)

// RegisterAll wires the standard provider set into a registry. storageDir
// is where the storage provider persists fragment scopes.
func RegisterAll(registry *service.Registry, storageDir string) error {
	storageProvider, err := storage.NewProvider(storageDir)
	if err != nil {
		return fmt.Errorf("storage provider: %w", err)
	}

	all := []service.Provider{
		storageProvider,
		httpprovider.NewProvider(),
		clipboard.NewProvider(),
		system.NewProvider(),
		mathprovider.NewProvider(),
		content.NewProvider(),
	}

	for _, p := range all {
		if err := registry.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", p.Definition().ID, err)
		}
	}
	return nil
}
