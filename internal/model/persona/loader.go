package persona

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile 从 YAML 文件读取 persona 列表。
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML list of personas and validates it.
func Parse(data []byte) ([]Persona, error) {
	var items []Persona
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode persona file: %w", err)
	}

	if err := validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

func validate(items []Persona) error {
	if len(items) == 0 {
		return fmt.Errorf("persona file defines no personas")
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return fmt.Errorf("persona #%d: id is required", i+1)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("persona %q: duplicate id", id)
		}
		seen[id] = struct{}{}

		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("persona %q: name is required", id)
		}
		if strings.TrimSpace(item.VoiceID) == "" {
			return fmt.Errorf("persona %q: voice_id is required", id)
		}
		switch item.Difficulty {
		case Easy, Medium, Hard, "":
		default:
			return fmt.Errorf("persona %q: unknown difficulty %q", id, item.Difficulty)
		}
	}
	return nil
}
