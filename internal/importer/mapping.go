package importer

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var defaultMappingsYAML []byte

// ColumnRule maps one CSV column to a project field. Part is "start" or
// "end" when a date range is split across two columns.
type ColumnRule struct {
	Source string `yaml:"source"`
	Field  string `yaml:"field"`
	Part   string `yaml:"part,omitempty"`
}

// PeopleColumns names the columns that carry principal investigators.
type PeopleColumns struct {
	PI     string `yaml:"pi"`
	CoPIs  string `yaml:"co_pis,omitempty"`
	Emails string `yaml:"emails,omitempty"`
}

type Mapping struct {
	Name        string        `yaml:"name"`
	Detect      string        `yaml:"detect,omitempty"`
	DateLayouts []string      `yaml:"date_layouts"`
	Columns     []ColumnRule  `yaml:"columns"`
	People      PeopleColumns `yaml:"people"`
}

// AwardColumn is the source column of the award number.
func (m *Mapping) AwardColumn() string {
	for _, c := range m.Columns {
		if c.Field == FieldAwardNumber {
			return c.Source
		}
	}
	return ""
}

type MappingSet struct {
	Formats []Mapping `yaml:"formats"`
}

// LoadMappings reads mappings from path, or the built-in set when path is empty.
func LoadMappings(path string) (*MappingSet, error) {
	raw := defaultMappingsYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read mappings %s: %w", path, err)
		}
		raw = []byte(os.ExpandEnv(string(b)))
	}

	var set MappingSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to parse mappings: %w", err)
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// DefaultMappings returns the built-in mapping set.
func DefaultMappings() *MappingSet {
	set, err := LoadMappings("")
	if err != nil {
		panic(err)
	}
	return set
}

func (s *MappingSet) validate() error {
	if len(s.Formats) == 0 {
		return errors.New("mappings define no formats")
	}
	for i := range s.Formats {
		m := &s.Formats[i]
		if m.Name == "" {
			return fmt.Errorf("mapping %d has no name", i)
		}
		if m.AwardColumn() == "" {
			return fmt.Errorf("mapping %s has no award_number column", m.Name)
		}
		if len(m.DateLayouts) == 0 {
			return fmt.Errorf("mapping %s has no date layouts", m.Name)
		}
	}
	return nil
}

// Detect selects the mapping for an import from the first row's columns.
// Rows after the first are not inspected.
func (s *MappingSet) Detect(rows []Row) *Mapping {
	var fallback *Mapping
	for i := range s.Formats {
		m := &s.Formats[i]
		if m.Detect == "" {
			if fallback == nil {
				fallback = m
			}
			continue
		}
		if len(rows) > 0 {
			if _, ok := rows[0][m.Detect]; ok {
				return m
			}
		}
	}
	if fallback == nil {
		fallback = &s.Formats[len(s.Formats)-1]
	}
	return fallback
}

// Lookup returns the mapping with the given name.
func (s *MappingSet) Lookup(name string) (*Mapping, bool) {
	for i := range s.Formats {
		if s.Formats[i].Name == name {
			return &s.Formats[i], true
		}
	}
	return nil, false
}
