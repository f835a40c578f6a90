// Package factors holds the emission factor reference table: CO2e mass
// emitted per kilogram of a given material, loaded once at startup and
// immutable afterwards.
package factors

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/carbondriven/carbon-pilot/internal/must"
)

//go:embed data/emission_factors.json
var defaultDataset []byte

// Material describes one entry of the emission factor reference table.
type Material struct {
	CO2PerKg    float64 `json:"co2_per_kg"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
}

// TransportMode describes one entry of the transportation section. The
// section is part of the dataset schema but no computation consumes it yet.
type TransportMode struct {
	CO2PerKmPerKg float64 `json:"co2_per_km_per_kg"`
	Unit          string  `json:"unit"`
	Description   string  `json:"description"`
}

// Table is the parsed emission factor dataset. Lookups are exact and case
// sensitive. Listing methods return names in the dataset's own order.
type Table struct {
	materials      map[string]Material
	materialOrder  []string
	transportation map[string]TransportMode
	transportOrder []string
}

// Default returns the table built from the embedded reference dataset.
func Default() *Table {
	table, err := Load(bytes.NewReader(defaultDataset))
	must.Assert(err == nil, "embedded emission factor dataset is invalid")
	return table
}

// LoadFile loads a table from a dataset file on disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open emission factor dataset: %w", err)
	}
	defer f.Close()

	table, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load emission factor dataset %s: %w", path, err)
	}

	return table, nil
}

// Load parses a dataset document. The document is a JSON object with a
// mandatory "materials" section and an optional "transportation" section.
// Key order is read off the token stream so that listings preserve the
// document order.
func Load(r io.Reader) (*Table, error) {
	table := &Table{
		materials:      make(map[string]Material),
		transportation: make(map[string]TransportMode),
	}

	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("dataset is not a JSON object: %w", err)
	}

	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset section name: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected dataset token %v", keyToken)
		}

		switch key {
		case "materials":
			if err := table.decodeMaterials(dec); err != nil {
				return nil, err
			}
		case "transportation":
			if err := table.decodeTransportation(dec); err != nil {
				return nil, err
			}
		default:
			var skipped json.RawMessage
			if err := dec.Decode(&skipped); err != nil {
				return nil, fmt.Errorf("failed to skip dataset section %q: %w", key, err)
			}
		}
	}

	if len(table.materials) == 0 {
		return nil, fmt.Errorf("dataset declares no materials")
	}

	return table, nil
}

func (t *Table) decodeMaterials(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("materials section is not a JSON object: %w", err)
	}

	for dec.More() {
		nameToken, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read material name: %w", err)
		}
		name := nameToken.(string)

		var material Material
		if err := dec.Decode(&material); err != nil {
			return fmt.Errorf("failed to decode material %q: %w", name, err)
		}

		// duplicated keys keep the last entry and their first position
		if _, seen := t.materials[name]; !seen {
			t.materialOrder = append(t.materialOrder, name)
		}
		t.materials[name] = material
	}

	_, err := dec.Token()
	return err
}

func (t *Table) decodeTransportation(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("transportation section is not a JSON object: %w", err)
	}

	for dec.More() {
		nameToken, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read transport mode name: %w", err)
		}
		name := nameToken.(string)

		var mode TransportMode
		if err := dec.Decode(&mode); err != nil {
			return fmt.Errorf("failed to decode transport mode %q: %w", name, err)
		}

		if _, seen := t.transportation[name]; !seen {
			t.transportOrder = append(t.transportOrder, name)
		}
		t.transportation[name] = mode
	}

	_, err := dec.Token()
	return err
}

func expectDelim(dec *json.Decoder, delim json.Delim) error {
	token, err := dec.Token()
	if err != nil {
		return err
	}
	if token != delim {
		return fmt.Errorf("expected %q, got %v", delim, token)
	}
	return nil
}

// Lookup returns the co2_per_kg factor of a material. Absence is reported
// through the second return value, never as a zero factor.
func (t *Table) Lookup(name string) (float64, bool) {
	material, found := t.materials[name]
	if !found {
		return 0, false
	}
	return material.CO2PerKg, true
}

// Details returns the full material entry.
func (t *Table) Details(name string) (Material, bool) {
	material, found := t.materials[name]
	return material, found
}

// Materials lists all material names in dataset order.
func (t *Table) Materials() []string {
	return slices.Clone(t.materialOrder)
}

// Len returns the number of materials in the table.
func (t *Table) Len() int {
	return len(t.materials)
}

// TransportModes lists all transport mode names in dataset order.
func (t *Table) TransportModes() []string {
	return slices.Clone(t.transportOrder)
}

// TransportDetails returns the full transport mode entry.
func (t *Table) TransportDetails(name string) (TransportMode, bool) {
	mode, found := t.transportation[name]
	return mode, found
}
