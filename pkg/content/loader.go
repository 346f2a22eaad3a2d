package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the serialization of a content file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks a format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported content file extension: %s", filepath.Ext(path))
	}
}

// Load reads a content table from disk.
func Load(path string) (*Table, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file %s: %w", path, err)
	}

	t, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a content table.
func Parse(data []byte, format Format) (*Table, error) {
	var t Table
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown content format %q", format)
	}

	t.normalize()
	if len(t.Scenes) == 0 {
		return nil, fmt.Errorf("content table has no scenes")
	}
	if _, ok := t.Scene(t.Start()); !ok {
		return nil, fmt.Errorf("start scene %q is not defined", t.Start())
	}
	return &t, nil
}
