// Package outcodes holds the reference set of postal areas iterated by a run.
package outcodes

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"outcode-retriever/models"
)

//go:embed outcodes.yaml
var defaultData []byte

// Set is an immutable, ID-ordered list of outcodes.
type Set struct {
	items []models.Outcode
	byID  map[int]models.Outcode
}

// Default returns the embedded reference set.
func Default() (*Set, error) {
	return Parse(defaultData)
}

// Load reads the set from path, or the embedded set when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("outcodes: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document of the form
//
//	outcodes:
//	  - {id: 1, code: AB10}
func Parse(data []byte) (*Set, error) {
	var doc struct {
		Outcodes []models.Outcode `yaml:"outcodes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("outcodes: decode: %w", err)
	}
	return New(doc.Outcodes)
}

// New builds a Set, rejecting duplicate or non-positive ids.
func New(items []models.Outcode) (*Set, error) {
	s := &Set{
		items: make([]models.Outcode, len(items)),
		byID:  make(map[int]models.Outcode, len(items)),
	}
	copy(s.items, items)
	for _, o := range s.items {
		if o.ID <= 0 {
			return nil, fmt.Errorf("outcodes: invalid id %d for %q", o.ID, o.Code)
		}
		if _, dup := s.byID[o.ID]; dup {
			return nil, fmt.Errorf("outcodes: duplicate id %d", o.ID)
		}
		s.byID[o.ID] = o
	}
	sort.Slice(s.items, func(i, j int) bool { return s.items[i].ID < s.items[j].ID })
	return s, nil
}

// All returns a copy of the outcodes in iteration order.
func (s *Set) All() []models.Outcode {
	out := make([]models.Outcode, len(s.items))
	copy(out, s.items)
	return out
}

// Lookup returns the outcode with the given id.
func (s *Set) Lookup(id int) (models.Outcode, bool) {
	o, ok := s.byID[id]
	return o, ok
}

func (s *Set) Len() int { return len(s.items) }
