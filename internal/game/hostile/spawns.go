package hostile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnSpec places Count instances of a template at a location on startup.
type SpawnSpec struct {
	TemplateID string `yaml:"template"`
	LocationID string `yaml:"location"`
	Count      int    `yaml:"count"`
}

// LoadSpawns reads a YAML list of spawn specs from path.
//
// Postcondition: Returns the specs, or an error on read, parse, or a spec
// with an empty template/location or Count < 1.
func LoadSpawns(path string) ([]SpawnSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spawns file %q: %w", path, err)
	}

	var specs []SpawnSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing spawns file %q: %w", path, err)
	}

	for i, s := range specs {
		if s.TemplateID == "" || s.LocationID == "" {
			return nil, fmt.Errorf("spawn spec %d: template and location must not be empty", i)
		}
		if s.Count < 1 {
			return nil, fmt.Errorf("spawn spec %d (%s@%s): count must be >= 1", i, s.TemplateID, s.LocationID)
		}
	}
	return specs, nil
}

// Populate spawns every spec into the manager, resolving templates by ID.
//
// Precondition: every spec's template must be present in templates.
// Postcondition: Returns the number of instances spawned, or an error on the
// first unknown template; earlier spawns are kept.
func Populate(m *Manager, templates []*Template, specs []SpawnSpec) (int, error) {
	byID := make(map[string]*Template, len(templates))
	for _, tmpl := range templates {
		byID[tmpl.ID] = tmpl
	}

	spawned := 0
	for _, spec := range specs {
		tmpl, ok := byID[spec.TemplateID]
		if !ok {
			return spawned, fmt.Errorf("spawn references unknown template %q", spec.TemplateID)
		}
		for i := 0; i < spec.Count; i++ {
			if _, err := m.Spawn(tmpl, spec.LocationID); err != nil {
				return spawned, err
			}
			spawned++
		}
	}
	return spawned, nil
}
