package fs

import (
	"context"
	"os"

	"github.com/usefocal/focal"
	"gopkg.in/yaml.v3"
)

// Ensure SeedRegistry implements focal.SeedRegistry at compile time.
var _ focal.SeedRegistry = (*SeedRegistry)(nil)

// SeedRegistry serves curated seeds from a YAML file:
//
//	seeds:
//	  - id: py-docs
//	    url: https://docs.python.org/3/
//	    keywords: [python, packaging]
//	    trust: 1.2
//	    feed: https://blog.python.org/feeds/posts/default
//
// A missing file yields an empty registry.
type SeedRegistry struct {
	path string
}

type seedFile struct {
	Seeds []focal.Seed `yaml:"seeds"`
}

// NewSeedRegistry creates a registry backed by the YAML file at path.
func NewSeedRegistry(path string) *SeedRegistry {
	return &SeedRegistry{path: path}
}

// Seeds loads and returns the registry entries.
func (r *SeedRegistry) Seeds(ctx context.Context) ([]focal.Seed, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, focal.Errorf(focal.EINVALID, "seed registry %s: %v", r.path, err)
	}

	seeds := make([]focal.Seed, 0, len(f.Seeds))
	for _, seed := range f.Seeds {
		if seed.URL == "" {
			continue
		}
		if seed.Trust == 0 {
			seed.Trust = 1.0
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
