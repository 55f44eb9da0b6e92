// Package geodata loads the prepackaged FIPS->polygon lookup file.
package geodata

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one fips_county_geometry.json value: a set of polygon rings,
// each ring an ordered [lon,lat] sequence.
type Entry struct {
	Geometry [][][2]float64 `json:"geometry"`
}

// Table is the full fips -> geometry lookup.
type Table map[string]Entry

// Load reads and parses the county-geometry file. A missing file is not an
// error at this layer; callers that need geometry overlay treat an empty
// Table the same as "no geometry known".
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("reading county geometry file: %w", err)
	}
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing county geometry file: %w", err)
	}
	return table, nil
}

// Lookup returns the polygon rings known for a FIPS code, if any.
func (t Table) Lookup(fips string) ([][][2]float64, bool) {
	entry, ok := t[fips]
	if !ok || len(entry.Geometry) == 0 {
		return nil, false
	}
	return entry.Geometry, true
}
