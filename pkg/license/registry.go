// Package license resolves license ids to their title, URL and openness.
package license

import (
	"embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

//go:embed licenses.toml
var defaultsFS embed.FS

type License struct {
	ID     string `toml:"id" json:"id"`
	Title  string `toml:"title" json:"title"`
	URL    string `toml:"url" json:"url"`
	IsOpen bool   `toml:"is_open" json:"is_open"`
}

type file struct {
	Licenses []License `toml:"license"`
}

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	byID map[string]License
}

// Default returns the built-in license table.
func Default() *Registry {
	f, err := defaultsFS.Open("licenses.toml")
	if err != nil {
		panic(fmt.Sprintf("license: embedded table missing: %v", err))
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		panic(fmt.Sprintf("license: embedded table invalid: %v", err))
	}
	return r
}

// LoadFile reads a TOML license table from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open license file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a TOML document of [[license]] tables.
func Parse(r io.Reader) (*Registry, error) {
	var doc file
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode license table: %w", err)
	}
	return New(doc.Licenses...), nil
}

func New(licenses ...License) *Registry {
	byID := make(map[string]License, len(licenses))
	for _, l := range licenses {
		byID[l.ID] = l
	}
	return &Registry{byID: byID}
}

// Get looks up a license by id.
func (r *Registry) Get(id string) (License, bool) {
	if r == nil {
		return License{}, false
	}
	l, ok := r.byID[id]
	return l, ok
}

// IsOpen reports whether id names a registered open license.
func (r *Registry) IsOpen(id string) bool {
	l, ok := r.Get(id)
	return ok && l.IsOpen
}

// All returns every license ordered by id.
func (r *Registry) All() []License {
	out := make([]License, 0, len(r.byID))
	for _, l := range r.byID {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
