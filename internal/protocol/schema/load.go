package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Format names a schema document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var ErrUnknownFormat = errors.New("schema: unknown document format")

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".ksy":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Parse decodes a schema document without compiling it.
func Parse(data []byte, format Format) (Def, error) {
	var def Def
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return Def{}, fmt.Errorf("schema: parse yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &def)
		if err != nil {
			return Def{}, fmt.Errorf("schema: parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Def{}, fmt.Errorf("%w %q", ErrUnknownKey, undecoded[0].String())
		}
	default:
		return Def{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return def, nil
}

// Entry is a compiled schema document.
type Entry struct {
	ID     string
	Path   string
	Def    Def
	Schema *protocol.Schema
}

// Load reads, parses and compiles the document at path. A document without
// an id takes the file name without extension.
func Load(path string, opts ...protocol.SchemaOption) (*Entry, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s, err := Compile(def, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Entry{ID: def.ID, Path: path, Def: def, Schema: s}, nil
}

// Registry holds compiled schemas keyed by id. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	opts    []protocol.SchemaOption
}

// NewRegistry returns an empty registry; opts apply to every schema it loads.
func NewRegistry(opts ...protocol.SchemaOption) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		opts:    opts,
	}
}

// Add registers e, rejecting an id already in use.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[e.ID]; ok {
		return fmt.Errorf("%w %q (%s, %s)", ErrDuplicateID, e.ID, prev.Path, e.Path)
	}
	r.entries[e.ID] = e
	return nil
}

// LoadFile compiles and registers one document.
func (r *Registry) LoadFile(path string) (*Entry, error) {
	e, err := Load(path, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := r.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadDir registers every schema document directly inside dir. Files with
// other extensions are skipped. The first failure aborts the load.
func (r *Registry) LoadDir(dir string) (int, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("schema: read dir %s: %w", dir, err)
	}
	loaded := 0
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		path := filepath.Join(dir, item.Name())
		if _, err := FormatFromPath(path); err != nil {
			log.Debug().Str("path", path).Msg("schema registry skipping file")
			continue
		}
		e, err := r.LoadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("schema registry load failed")
			return loaded, err
		}
		log.Debug().Str("schema", e.ID).Str("path", path).Msg("schema registered")
		loaded++
	}
	log.Info().Str("dir", dir).Int("schemas", loaded).Msg("schema registry loaded")
	return loaded, nil
}

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns all entries sorted by id.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
