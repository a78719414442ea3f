package stream

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Mapping maps a logical name to a relative path and media type
type Mapping struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	MediaType string `yaml:"media-type,omitempty"`
}

// mappingFile is the on-disk layout of a location mapping table
type mappingFile struct {
	Locations []Mapping `yaml:"locations"`
}

// LocationMapper holds alternate names for documents
type LocationMapper struct {
	mu      sync.RWMutex
	entries map[string]Mapping
}

// NewLocationMapper creates a mapper with the given entries
func NewLocationMapper(entries ...Mapping) *LocationMapper {
	m := &LocationMapper{entries: make(map[string]Mapping)}
	for _, e := range entries {
		m.Add(e)
	}
	return m
}

// Add registers or replaces a mapping
func (m *LocationMapper) Add(e Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Name] = e
}

// Lookup returns the mapping for a logical name
func (m *LocationMapper) Lookup(name string) (Mapping, bool) {
	if m == nil {
		return Mapping{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	return e, ok
}

// Len returns the number of mappings
func (m *LocationMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ParseLocationMapping reads a YAML mapping table
//
//	locations:
//	  - name: http://example.org/people
//	    path: data/people.csv
//	    media-type: text/csv
func ParseLocationMapping(data []byte) (*LocationMapper, error) {
	var f mappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid location mapping: %w", err)
	}
	m := NewLocationMapper()
	for i, e := range f.Locations {
		if e.Name == "" || e.Path == "" {
			return nil, fmt.Errorf("invalid location mapping: entry %d needs name and path", i)
		}
		m.Add(e)
	}
	return m, nil
}

// LoadLocationMapping reads a YAML mapping table from a file
func LoadLocationMapping(filename string) (*LocationMapper, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read location mapping: %w", err)
	}
	return ParseLocationMapping(data)
}
