package criteria

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-screener/internal/contracts"
)

//go:embed presets/*.yaml
var builtinFS embed.FS

// Preset is a named, versioned criteria document
type Preset struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Sort        string   `yaml:"sort" json:"sort"`
	Criteria    Criteria `yaml:"criteria" json:"criteria"`

	Hash   string `yaml:"-" json:"hash"`
	Source string `yaml:"-" json:"source"` // builtin or a file path
}

// Parse decodes and validates one preset document.
// ⭐ SSOT: KnownFields(true) so a misspelled key fails instead of being ignored
func Parse(data []byte) (*Preset, error) {
	var p Preset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidCriteria, err)
	}

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, ValidationErrors{{"name", "required"}}
	}
	if _, err := ParseSortKey(p.Sort); err != nil {
		return nil, ValidationErrors{{"sort", err.Error()}}
	}
	if err := Validate(&p.Criteria); err != nil {
		return nil, fmt.Errorf("preset %s: %w", p.Name, err)
	}

	hash, err := Hash(&p.Criteria)
	if err != nil {
		return nil, err
	}
	p.Hash = hash

	return &p, nil
}

// LoadFile reads one preset from disk
func LoadFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// Hash generates a SHA256 hash from the canonical JSON form of the criteria.
// Struct fields marshal in declaration order and map keys sorted, so equal criteria hash equally.
func Hash(c *Criteria) (string, error) {
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Registry holds presets by name
type Registry struct {
	presets map[string]*Preset
}

// Builtin returns the presets compiled into the binary
func Builtin() (*Registry, error) {
	r := &Registry{presets: make(map[string]*Preset)}
	err := fs.WalkDir(builtinFS, "presets", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		p, err := Parse(data)
		if err != nil {
			return fmt.Errorf("builtin %s: %w", path, err)
		}
		p.Source = "builtin"
		r.presets[p.Name] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRegistry returns the builtin presets overlaid with every *.yaml / *.yml file in dir.
// A missing dir is not an error; a file preset replaces a builtin of the same name.
func LoadRegistry(dir string) (*Registry, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset dir: %w", err)
	}

	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		r.presets[p.Name] = p
	}
	return r, nil
}

// Get returns a preset by name or contracts.ErrNotFound
func (r *Registry) Get(name string) (*Preset, error) {
	p, ok := r.presets[name]
	if !ok {
		return nil, fmt.Errorf("preset %q: %w", name, contracts.ErrNotFound)
	}
	return p, nil
}

// List returns presets sorted by name
func (r *Registry) List() []*Preset {
	out := make([]*Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
