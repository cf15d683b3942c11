// Package seed provides the starting property, map region and neighbor roster.
package seed

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/scorer"
)

//go:embed default.yaml
var defaultYAML []byte

// Region is the initial map viewport.
type Region struct {
	Center         model.Coordinate `yaml:"center" json:"center"`
	LatitudeDelta  float64          `yaml:"latitude_delta" json:"latitude_delta"`
	LongitudeDelta float64          `yaml:"longitude_delta" json:"longitude_delta"`
}

// Seed is the data a fresh instance starts from.
type Seed struct {
	Property  model.Property   `yaml:"property"`
	Region    Region           `yaml:"region"`
	Neighbors []model.Neighbor `yaml:"neighbors"`
}

// Default returns the built-in demo seed.
func Default() (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(defaultYAML, &s); err != nil {
		return nil, eris.Wrap(err, "seed: parse default")
	}
	return &s, nil
}

// Load reads a seed file. Top-level sections missing from the file keep the
// built-in values. An empty path returns Default.
func Load(path string) (*Seed, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}

	var override struct {
		Property  *model.Property  `yaml:"property"`
		Region    *Region          `yaml:"region"`
		Neighbors []model.Neighbor `yaml:"neighbors"`
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "seed: parse %s", path)
	}
	if override.Property != nil {
		s.Property = *override.Property
	}
	if override.Region != nil {
		s.Region = *override.Region
	}
	if override.Neighbors != nil {
		s.Neighbors = override.Neighbors
	}

	if err := s.Validate(); err != nil {
		return nil, eris.Wrapf(err, "seed: %s", path)
	}
	return s, nil
}

// Validate checks the property and every neighbor completion.
func (s *Seed) Validate() error {
	if err := s.Property.Validate(); err != nil {
		return err
	}
	return validateNeighbors(s.Neighbors)
}

func validateNeighbors(neighbors []model.Neighbor) error {
	seen := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		if n.ID == "" {
			return eris.New("seed: neighbor id is required")
		}
		if seen[n.ID] {
			return eris.Errorf("seed: duplicate neighbor %s", n.ID)
		}
		seen[n.ID] = true
		if n.Completion < 0 || n.Completion > scorer.DefaultMaxScore {
			return eris.Wrapf(
				&scorer.RangeError{Field: "completion", Value: n.Completion, Min: 0, Max: scorer.DefaultMaxScore},
				"seed: neighbor %s", n.ID,
			)
		}
	}
	return nil
}
