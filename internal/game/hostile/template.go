// Package hostile provides hostile archetype definitions and live instance
// management. Templates are the combatant source for the hostile side of a
// fight.
package hostile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// Template defines a reusable hostile archetype loaded from YAML.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MaxHP       int    `yaml:"max_hp"`
	ArmorClass  int    `yaml:"armor_class"`
	AttackBonus int    `yaml:"attack_bonus"`
	// Damage is the dice expression rolled on a hit, e.g. "1d6+2".
	Damage string `yaml:"damage"`
	// Defense is the flat reduction applied to incoming damage.
	Defense int `yaml:"defense"`
	// Speed feeds initiative and the flee-chance contest.
	Speed int `yaml:"speed"`
	// Aggression is the percent chance [0, 100] this hostile attacks on its
	// turn rather than defending.
	Aggression int `yaml:"aggression"`
	// Experience and Gold are granted to the players when this hostile is
	// defeated.
	Experience int `yaml:"experience"`
	Gold       int `yaml:"gold"`
}

// Validate checks that the template satisfies basic invariants, including
// that the damage expression parses.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, MaxHP >= 1,
// ArmorClass >= 1, Defense >= 0, Aggression is in [0, 100], Experience and
// Gold are >= 0, and Damage is a valid dice expression; returns an error on
// the first violation otherwise.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("hostile template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("hostile template %q: name must not be empty", t.ID)
	}
	if t.MaxHP < 1 {
		return fmt.Errorf("hostile template %q: max_hp must be >= 1", t.ID)
	}
	if t.ArmorClass < 1 {
		return fmt.Errorf("hostile template %q: armor_class must be >= 1", t.ID)
	}
	if t.Defense < 0 {
		return fmt.Errorf("hostile template %q: defense must be >= 0", t.ID)
	}
	if t.Aggression < 0 || t.Aggression > 100 {
		return fmt.Errorf("hostile template %q: aggression %d must be in [0, 100]", t.ID, t.Aggression)
	}
	if t.Experience < 0 || t.Gold < 0 {
		return fmt.Errorf("hostile template %q: experience and gold must be >= 0", t.ID)
	}
	if _, err := dice.Parse(t.Damage); err != nil {
		return fmt.Errorf("hostile template %q: damage: %w", t.ID, err)
	}
	return nil
}

// LoadTemplateFromBytes parses a single hostile template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or
// validate failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading hostile dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
