package rendertree

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the shared default inside a render tree directory.
const DefaultFileName = "default.yaml"

// Parse decodes and compiles a YAML render tree.
func Parse(data []byte) (*Tree, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return Compile(cfg)
}

// LoadFile reads one render tree file. Trees without a name take the file's
// base name.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read render tree: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if t.name == "" {
		t.name = characterIDFromPath(path)
		t.source.Name = t.name
	}
	return t, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if _, err := Compile(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create render tree dir: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode render tree: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode render tree: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadDir loads every *.yaml file in dir into r. <id>.yaml becomes the tree
// for character id and default.yaml the shared default. Files that fail to
// parse are skipped and reported together; the rest still load.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrConfigNotFound, dir)
		}
		return 0, fmt.Errorf("read render tree dir: %w", err)
	}

	var errs []error
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !isTreeFile(e.Name()) {
			continue
		}
		if err := r.LoadPath(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}

	r.logger.Info().Str("dir", dir).Int("loaded", loaded).Int("failed", len(errs)).Msg("render trees loaded")
	return loaded, errors.Join(errs...)
}

// LoadPath loads a single file into r, routing default.yaml to the shared
// default.
func (r *Registry) LoadPath(path string) error {
	t, err := LoadFile(path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("render tree rejected")
		return err
	}
	if filepath.Base(path) == DefaultFileName {
		r.SetDefault(t)
		return nil
	}
	r.Set(characterIDFromPath(path), t)
	return nil
}

// unloadPath forgets whatever path provided.
func (r *Registry) unloadPath(path string) {
	if filepath.Base(path) == DefaultFileName {
		r.SetDefault(nil)
		return
	}
	r.Remove(characterIDFromPath(path))
}

func isTreeFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func characterIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
