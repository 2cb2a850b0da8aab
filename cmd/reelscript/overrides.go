package main

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/reelscript/internal/workflow"
)

// keyValueFlag collects repeatable task.key=value overrides.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected task.key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

// apply writes each override into the config of the chain step it names.
func (kv keyValueFlag) apply(def *workflow.Definition) error {
	for key, value := range kv {
		step, field, ok := strings.Cut(key, ".")
		if !ok || step == "" || field == "" {
			return fmt.Errorf("override %q must look like task.key", key)
		}
		found := false
		for i := range def.Tasks {
			ref := &def.Tasks[i]
			if ref.ID != step && ref.TaskID != step {
				continue
			}
			if ref.Config == nil {
				ref.Config = workflow.TaskConfig{}
			}
			ref.Config[field] = scalar(value)
			found = true
		}
		if !found {
			return fmt.Errorf("override %q names no step in %s", key, def.ID)
		}
	}
	return nil
}

// scalar decodes numbers and booleans the way a YAML chain file would;
// anything else stays a plain string.
func scalar(value string) any {
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return value
	}
	switch parsed.(type) {
	case int, float64, bool:
		return parsed
	default:
		return value
	}
}
