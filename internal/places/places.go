// Package places holds the static reference tables that resolve a place name to an
// address and a coordinate.
package places

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// File names of the three tables inside a data directory.
const (
	PlacesFile     = "places.json"
	AddressesFile  = "addresses.json"
	GeocodingsFile = "geocodings.json"
)

// Table is the read-only place reference data.
type Table struct {
	// Places maps a lower-case place name or alias to a place key.
	Places map[string]string
	// Addresses maps a place key to its street address.
	Addresses map[string]string
	// Geocodings maps a place key to its coordinate.
	Geocodings map[string]models.Coordinate

	duplicates map[string][]string
}

// Load reads the tables from dir. A missing geocodings file yields an empty table so
// that it can be generated.
func Load(dir string) (*Table, error) {
	t := &Table{duplicates: make(map[string][]string)}
	var err error
	if t.Places, err = loadTable[string](filepath.Join(dir, PlacesFile), t.duplicates, false); err != nil {
		return nil, err
	}
	if t.Addresses, err = loadTable[string](filepath.Join(dir, AddressesFile), t.duplicates, false); err != nil {
		return nil, err
	}
	if t.Geocodings, err = loadTable[models.Coordinate](filepath.Join(dir, GeocodingsFile), t.duplicates, true); err != nil {
		return nil, err
	}
	slog.Debug("places.Load", "dir", dir, "places", len(t.Places), "addresses", len(t.Addresses), "geocodings", len(t.Geocodings))
	return t, nil
}

// Lookup resolves a normalised place name. It reports false when the name is unknown
// or its place has no coordinate.
func (t *Table) Lookup(name string) (models.Coordinate, bool) {
	key, ok := t.Places[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.Coordinate{}, false
	}
	coord, ok := t.Geocodings[key]
	return coord, ok
}

// Report is the outcome of Validate.
type Report struct {
	// DuplicateKeys lists keys that appear more than once, by file.
	DuplicateKeys map[string][]string
	// MissingAddresses lists place keys with no address.
	MissingAddresses []string
	// MissingGeocodings lists place keys with no coordinate.
	MissingGeocodings []string
}

// OK reports whether the tables passed every check.
func (r Report) OK() bool {
	return len(r.DuplicateKeys) == 0 && len(r.MissingAddresses) == 0 && len(r.MissingGeocodings) == 0
}

// Validate checks key uniqueness in every file and that every place key referenced by
// the place-name table has an address and a coordinate.
func (t *Table) Validate() Report {
	r := Report{DuplicateKeys: make(map[string][]string)}
	for file, keys := range t.duplicates {
		r.DuplicateKeys[file] = append([]string(nil), keys...)
	}
	seen := make(map[string]bool)
	for _, key := range t.Places {
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := t.Addresses[key]; !ok {
			r.MissingAddresses = append(r.MissingAddresses, key)
		}
		if _, ok := t.Geocodings[key]; !ok {
			r.MissingGeocodings = append(r.MissingGeocodings, key)
		}
	}
	slices.Sort(r.MissingAddresses)
	slices.Sort(r.MissingGeocodings)
	return r
}

// WriteGeocodings writes coords as the geocodings table in dir.
func WriteGeocodings(dir string, coords map[string]models.Coordinate) error {
	data, err := json.MarshalIndent(coords, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode geocodings: %w", err)
	}
	path := filepath.Join(dir, GeocodingsFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// loadTable decodes a flat JSON object, recording keys that occur more than once.
// The last occurrence of a duplicate wins.
func loadTable[V any](path string, duplicates map[string][]string, optional bool) (map[string]V, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return make(map[string]V), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw rawObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	table := make(map[string]V, len(raw))
	for _, f := range raw {
		if _, dup := table[f.key]; dup {
			name := filepath.Base(path)
			duplicates[name] = append(duplicates[name], f.key)
		}
		var v V
		if err := json.Unmarshal(f.value, &v); err != nil {
			return nil, fmt.Errorf("failed to parse %s key %q: %w", path, f.key, err)
		}
		table[f.key] = v
	}
	return table, nil
}

type rawField struct {
	key   string
	value json.RawMessage
}

// rawObject keeps every member of a JSON object in order, duplicates included.
type rawObject []rawField

func (o *rawObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		*o = append(*o, rawField{key: key, value: value})
	}
	_, err = dec.Token()
	return err
}
