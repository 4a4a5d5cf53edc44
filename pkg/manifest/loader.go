package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRootKey is the top-level key holding the manifest in app.json.
const DefaultRootKey = "expo"

// FileNames lists the descriptor names looked up in a project directory, in order.
var FileNames = []string{"app.json", "app.yaml", "app.yml"}

var (
	// ErrManifestNotFound indicates no project descriptor exists in the directory.
	ErrManifestNotFound = errors.New("project manifest not found")

	// ErrMissingRootKey indicates the descriptor has no `expo` section.
	ErrMissingRootKey = errors.New("project manifest has no expo section")
)

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ResolveDir returns the project directory to read from. An empty dir means
// the current working directory.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return ExpandHome(dir), nil
}

// FindFile returns the path of the first known descriptor inside dir.
func FindFile(dir string) (string, error) {
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: looked for %s in %s", ErrManifestNotFound, strings.Join(FileNames, ", "), dir)
}

// Load reads the project descriptor from dir (current directory when empty)
// and returns its `expo` section.
func Load(dir string) (Manifest, error) {
	resolved, err := ResolveDir(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	path, err := FindFile(resolved)
	if err != nil {
		return nil, err
	}
	return LoadFile(path, DefaultRootKey)
}

// LoadFile reads a descriptor file and returns the section under rootKey.
// An empty rootKey returns the whole document.
func LoadFile(path, rootKey string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading manifest: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return LoadFromBytes(data, path, rootKey)
}

// LoadFromBytes parses a descriptor, extracts rootKey, and validates the
// result against the embedded schema. The path is used for format detection
// and error messages.
func LoadFromBytes(data []byte, path, rootKey string) (Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("manifest must be an object: %w", err)
	}

	section := doc
	if rootKey != "" {
		raw, ok := doc[rootKey]
		if !ok || raw == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingRootKey, path)
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an object", path, rootKey)
		}
		section = obj
	}

	m := Manifest(section)
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// toJSON converts the input data to JSON. JSON input is checked and returned
// as-is; YAML input is decoded and re-encoded.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil

	case ".yaml", ".yml":
		return yamlToJSON(data)

	default:
		var raw any
		if err := json.Unmarshal(data, &raw); err == nil {
			return data, nil
		}
		jsonData, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest (tried JSON and YAML): %w", err)
		}
		return jsonData, nil
	}
}

// yamlToJSON converts YAML data to JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest to JSON: %w", err)
	}
	return jsonData, nil
}
