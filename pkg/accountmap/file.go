package accountmap

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileMap is the `Users: { src: dest, ... }` YAML account map.
//
// NewFileMap returns a construction-time open/parse error directly
// rather than logging it and falling back to an empty map, so a
// misconfigured account-map file fails the process at startup instead
// of silently mapping no one.
type FileMap struct {
	users map[string]string
}

type fileMapDoc struct {
	Users map[string]string `yaml:"Users"`
}

// NewFileMap parses path as a Users: { src: dest } YAML document.
func NewFileMap(path string) (*FileMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read account map file %q: %w", path, err)
	}

	var doc fileMapDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse account map file %q: %w", path, err)
	}

	return &FileMap{users: doc.Users}, nil
}

// Lookup implements Map.
func (m *FileMap) Lookup(ctx context.Context, src string) (string, bool, error) {
	dest, ok := m.users[src]
	return dest, ok, nil
}
