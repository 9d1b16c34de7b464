package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, validates and defaults the manifest at path.
//
// .json files are parsed as JSON and .yaml/.yml files as YAML. Any other
// extension is tried as YAML first, then JSON.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("manifest file not found: %s", path)
		case os.IsPermission(err):
			return nil, fmt.Errorf("permission denied reading manifest: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads a manifest from r. path is only used for format
// detection and messages.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes validates data against the schema, then parses it and
// applies defaults.
//
// Validation runs on the raw document so unknown fields are reported
// instead of being dropped by the decoder.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	// The JSON form decodes identically for both input formats.
	var m Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	m.ApplyDefaults()
	return &m, nil
}

// toJSON returns data as a JSON document.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid(data) {
			var raw any
			err := json.Unmarshal(data, &raw)
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil
	case ".yaml", ".yml":
		return yamlToJSON(data)
	}

	out, yamlErr := yamlToJSON(data)
	if yamlErr == nil {
		return out, nil
	}
	if json.Valid(data) {
		return data, nil
	}
	return nil, fmt.Errorf("failed to parse manifest (tried YAML and JSON): %w", yamlErr)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest to JSON: %w", err)
	}
	return out, nil
}
