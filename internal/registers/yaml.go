package registers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRegister mirrors Register for file-based maps. min/max are
// pointers so a missing range is distinguishable from [0,0].
type yamlRegister struct {
	Address   uint16   `yaml:"address"`
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Unit      string   `yaml:"unit"`
	Scale     float64  `yaml:"scale"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	WordCount int      `yaml:"word_count"`
}

type yamlGroup struct {
	Name      string         `yaml:"name"`
	Start     uint16         `yaml:"start"`
	Count     uint16         `yaml:"count"`
	Optional  bool           `yaml:"optional"`
	Registers []yamlRegister `yaml:"registers"`
}

type yamlMap struct {
	Groups []yamlGroup `yaml:"groups"`
}

// Load reads a register map override from a YAML file and validates it.
// The file fully replaces the built-in map; partial overrides are not
// supported.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("register map %s: %w", path, err)
	}
	var ym yamlMap
	if err := yaml.Unmarshal(data, &ym); err != nil {
		return nil, fmt.Errorf("register map %s: parse: %w", path, err)
	}
	if len(ym.Groups) == 0 {
		return nil, fmt.Errorf("register map %s: no groups defined", path)
	}

	groups := make([]Group, 0, len(ym.Groups))
	for _, yg := range ym.Groups {
		g := Group{Name: yg.Name, Start: yg.Start, Count: yg.Count, Optional: yg.Optional}
		for _, yr := range yg.Registers {
			r := Register{
				Address:   yr.Address,
				Name:      yr.Name,
				Kind:      Kind(yr.Kind),
				Unit:      yr.Unit,
				Scale:     yr.Scale,
				WordCount: yr.WordCount,
			}
			if (yr.Min == nil) != (yr.Max == nil) {
				return nil, fmt.Errorf("register map %s: %q: min and max must be set together", path, yr.Name)
			}
			if yr.Min != nil {
				r.Min, r.Max, r.HasRange = *yr.Min, *yr.Max, true
			}
			g.Registers = append(g.Registers, r)
		}
		groups = append(groups, g)
	}

	m := NewMap(groups)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("register map %s: %w", path, err)
	}
	return m, nil
}
