package workflow

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseDefinitionYAML decodes a chain definition from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return def.Normalized()
}

// LoadDefinitionReader reads definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a definition from an explicit file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return def, nil
}

// LoadDefinitionByID loads <id>.yaml (or .yml) from the definitions directory.
func (w *Workflow) LoadDefinitionByID(id string) (Definition, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Definition{}, fmt.Errorf("workflow: definition id is required")
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(w.DefinitionsDir(), id+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadDefinitionFile(path)
		}
	}
	return Definition{}, fmt.Errorf("workflow: definition %s not found in %s: %w", id, w.DefinitionsDir(), fs.ErrNotExist)
}

// EncodeDefinitionYAML renders a definition so it can be saved and edited.
func EncodeDefinitionYAML(def Definition) ([]byte, error) {
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	normalized.Graph = nil
	data, err := yaml.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode definition: %w", err)
	}
	return data, nil
}
