package economy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Marketplace is the building kind that can never be demolished.
const Marketplace = "marketplace"

// ErrUnknownBuilding is returned for a kind missing from the catalogue.
var ErrUnknownBuilding = errors.New("unknown building kind")

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Requirements gate whether a building may operate.
type Requirements struct {
	Buildings       map[string]int `yaml:"buildings" json:"buildings,omitempty"` // kind → minimum level
	Research        string         `yaml:"research" json:"research,omitempty"`
	SettlementLevel int            `yaml:"settlement_level" json:"settlement_level,omitempty"`
}

// RequiredKinds returns the required building kinds in sorted order.
func (r Requirements) RequiredKinds() []string {
	kinds := make([]string, 0, len(r.Buildings))
	for k := range r.Buildings {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// BuildingSpec is the static configuration of one building kind.
type BuildingSpec struct {
	Kind            string             `yaml:"-" json:"kind"`
	Name            string             `yaml:"name" json:"name"`
	Handle          string             `yaml:"handle" json:"handle"`
	Levels          int                `yaml:"levels" json:"levels"`                   // Level cap
	Level           int                `yaml:"level" json:"level"`                     // Level when first built
	Cost            Resources          `yaml:"cost" json:"cost,omitempty"`             // Scaled by the next level on upgrade
	Production      Resources          `yaml:"production" json:"production,omitempty"` // Scaled by level
	Materials       Materials          `yaml:"materials" json:"materials"`
	Storage         int                `yaml:"storage" json:"storage,omitempty"` // Capacity bonus
	Tax             int                `yaml:"tax" json:"tax,omitempty"`         // Base tax; nonzero makes it housing
	Chance          map[string]float64 `yaml:"chance" json:"chance,omitempty"`   // Bonus resource → threshold
	Municipal       bool               `yaml:"is_municipal" json:"is_municipal,omitempty"`
	VisibleUpgrades bool               `yaml:"visible_upgrades" json:"visible_upgrades,omitempty"`
	Requires        Requirements       `yaml:"requires" json:"requires"`
}

// IsProduction reports whether the building produces goods and can be started and stopped.
func (s *BuildingSpec) IsProduction() bool { return len(s.Production) > 0 }

// IsHousing reports whether the building pays tax.
func (s *BuildingSpec) IsHousing() bool { return s.Tax != 0 }

// ChanceResources returns the bonus resources in sorted order so draws are
// reproducible under a seeded source.
func (s *BuildingSpec) ChanceResources() []string {
	keys := make([]string, 0, len(s.Chance))
	for k := range s.Chance {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Catalog holds every building kind's static configuration.
type Catalog struct {
	specs map[string]*BuildingSpec
}

// NewCatalog builds a catalogue from specs keyed by kind.
func NewCatalog(specs map[string]*BuildingSpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*BuildingSpec, len(specs))}
	for kind, spec := range specs {
		if spec == nil {
			return nil, fmt.Errorf("building %q: empty spec", kind)
		}
		spec.Kind = kind
		if spec.Name == "" {
			spec.Name = kind
		}
		if spec.Handle == "" {
			spec.Handle = kind
		}
		if spec.Levels < 1 {
			spec.Levels = 1
		}
		if spec.Level < 1 {
			spec.Level = 1
		}
		if spec.Level > spec.Levels {
			return nil, fmt.Errorf("building %q: initial level %d above cap %d", kind, spec.Level, spec.Levels)
		}
		c.specs[kind] = spec
	}
	for kind, spec := range c.specs {
		for req := range spec.Requires.Buildings {
			if _, ok := c.specs[req]; !ok {
				return nil, fmt.Errorf("building %q requires %q: %w", kind, req, ErrUnknownBuilding)
			}
		}
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalogue keyed by building kind.
func ParseCatalog(data []byte) (*Catalog, error) {
	var specs map[string]*BuildingSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing catalogue YAML: %w", err)
	}
	return NewCatalog(specs)
}

// LoadCatalog reads a YAML catalogue from a file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue file: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalogue.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalogue: %v", err))
	}
	return c
}

// Get returns the spec for a building kind.
func (c *Catalog) Get(kind string) (*BuildingSpec, error) {
	spec, ok := c.specs[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownBuilding)
	}
	return spec, nil
}

// Kinds returns all building kinds in sorted order.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.specs))
	for k := range c.specs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of building kinds.
func (c *Catalog) Len() int { return len(c.specs) }
