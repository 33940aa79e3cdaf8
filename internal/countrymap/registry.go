// Package countrymap implements the static reference table that maps
// (continent, country) to a fixed range of the first address octet.
//
// The table is loaded once at startup, validated, and never mutated at
// runtime. The embedded seed can be overridden with an on-disk YAML file of
// the same format.
package countrymap

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

//go:embed seed.yaml
var embeddedSeed []byte

// UnknownCountryError is returned when a caller requests an unmapped country.
type UnknownCountryError struct {
	Country string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("unknown country %q", e.Country)
}

// Registry is the immutable country-to-octet-range lookup table.
type Registry struct {
	mappings  []model.CountryMapping // sorted by XStart
	byCountry map[string]model.CountryMapping
}

// Default loads the Registry from the embedded seed table.
func Default() (*Registry, error) {
	return FromYAML(embeddedSeed)
}

// FromFile loads the Registry from an on-disk YAML seed file.
func FromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country map %s: %w", path, err)
	}
	return FromYAML(data)
}

// FromYAML parses and validates a YAML seed table.
func FromYAML(data []byte) (*Registry, error) {
	var mappings []model.CountryMapping
	if err := yaml.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("parse country map: %w", err)
	}
	return New(mappings)
}

// New validates the seed records and builds a Registry. Ranges must be
// contiguous, disjoint and jointly cover [0,255]; country names must be
// unique.
func New(mappings []model.CountryMapping) (*Registry, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("country map: empty seed table")
	}

	sorted := make([]model.CountryMapping, len(mappings))
	copy(sorted, mappings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].XStart < sorted[j].XStart })

	byCountry := make(map[string]model.CountryMapping, len(sorted))
	next := 0
	for _, m := range sorted {
		if m.Country == "" {
			return nil, fmt.Errorf("country map: record with empty country name")
		}
		if m.XStart > m.XEnd {
			return nil, fmt.Errorf("country map: %s: x_start %d > x_end %d", m.Country, m.XStart, m.XEnd)
		}
		if m.XStart < 0 || m.XEnd > 255 {
			return nil, fmt.Errorf("country map: %s: range [%d,%d] outside [0,255]", m.Country, m.XStart, m.XEnd)
		}
		if m.XStart != next {
			return nil, fmt.Errorf("country map: gap or overlap at octet %d (next record is %s at %d)", next, m.Country, m.XStart)
		}
		if _, dup := byCountry[m.Country]; dup {
			return nil, fmt.Errorf("country map: duplicate country %q", m.Country)
		}
		byCountry[m.Country] = m
		next = m.XEnd + 1
	}
	if next != 256 {
		return nil, fmt.Errorf("country map: ranges cover [0,%d], must cover [0,255]", next-1)
	}

	return &Registry{mappings: sorted, byCountry: byCountry}, nil
}

// RangeFor returns the first-octet range assigned to country.
func (r *Registry) RangeFor(country string) (xStart, xEnd int, err error) {
	m, ok := r.byCountry[country]
	if !ok {
		return 0, 0, &UnknownCountryError{Country: country}
	}
	return m.XStart, m.XEnd, nil
}

// Lookup returns the full mapping record for country.
func (r *Registry) Lookup(country string) (model.CountryMapping, error) {
	m, ok := r.byCountry[country]
	if !ok {
		return model.CountryMapping{}, &UnknownCountryError{Country: country}
	}
	return m, nil
}

// CountryFor returns the mapping whose range contains xOctet, or false if the
// octet is outside [0,255].
func (r *Registry) CountryFor(xOctet int) (model.CountryMapping, bool) {
	if xOctet < 0 || xOctet > 255 {
		return model.CountryMapping{}, false
	}
	// mappings are sorted and jointly exhaustive, so binary search always hits.
	i := sort.Search(len(r.mappings), func(i int) bool { return r.mappings[i].XEnd >= xOctet })
	return r.mappings[i], true
}

// Mappings returns all seed records in ascending range order.
func (r *Registry) Mappings() []model.CountryMapping {
	out := make([]model.CountryMapping, len(r.mappings))
	copy(out, r.mappings)
	return out
}

// Countries returns the names of all non-reserved countries in ascending
// range order.
func (r *Registry) Countries() []string {
	var out []string
	for _, m := range r.mappings {
		if !m.IsReserved {
			out = append(out, m.Country)
		}
	}
	return out
}
