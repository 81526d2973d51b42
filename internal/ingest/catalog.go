package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"newsdesk/internal/core"
)

// CatalogEntry is one configured feed in the sources file.
type CatalogEntry struct {
	Name     string `yaml:"name"`
	FeedURL  string `yaml:"feed_url"`
	Category string `yaml:"category"`
	Active   *bool  `yaml:"active"` // nil means active
}

// Catalog is the on-disk source configuration.
type Catalog struct {
	Sources []CatalogEntry `yaml:"sources"`
}

// LoadCatalog reads and validates the yaml sources file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	if len(catalog.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	seen := make(map[string]bool, len(catalog.Sources))
	for i, entry := range catalog.Sources {
		if entry.Name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
		if entry.FeedURL == "" {
			return nil, fmt.Errorf("source %q has no feed_url", entry.Name)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate source name %q", entry.Name)
		}
		seen[entry.Name] = true
	}

	return &catalog, nil
}

// SourceUpserter persists catalog entries.
type SourceUpserter interface {
	UpsertSource(src core.Source) error
}

// SyncCatalog loads the sources file and upserts each entry into the store,
// preserving per-source fetch bookkeeping. Returns the number of sources
// synced.
func SyncCatalog(st SourceUpserter, path string) (int, error) {
	catalog, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}

	for _, entry := range catalog.Sources {
		active := entry.Active == nil || *entry.Active
		src := core.Source{
			Name:     entry.Name,
			FeedURL:  entry.FeedURL,
			Category: entry.Category,
			Active:   active,
		}
		if err := st.UpsertSource(src); err != nil {
			return 0, fmt.Errorf("failed to sync source %q: %w", entry.Name, err)
		}
	}

	return len(catalog.Sources), nil
}
