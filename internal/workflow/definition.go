package workflow

import (
	"fmt"
	"sort"
)

// DependencyGraph maps chain-scoped task identifiers to the task IDs they
// depend on. The resolver treats the keys as aliases that correspond to
// TaskRef.InstanceID().
type DependencyGraph map[string][]string

// Clone returns a deep copy of the graph.
func (g DependencyGraph) Clone() DependencyGraph {
	if len(g) == 0 {
		return nil
	}
	out := make(DependencyGraph, len(g))
	for key, deps := range g {
		if len(deps) == 0 {
			out[key] = nil
			continue
		}
		clone := make([]string, len(deps))
		copy(clone, deps)
		out[key] = clone
	}
	return out
}

// Definition declares a task chain: the tasks, their dependencies and any
// metadata used for diagnostics.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []TaskRef         `json:"tasks" yaml:"tasks"`
	Graph       DependencyGraph   `json:"graph,omitempty" yaml:"graph,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    cloneStringMap(def.Metadata),
		Graph:       def.Graph.Clone(),
	}
	if len(def.Tasks) > 0 {
		clone.Tasks = make([]TaskRef, len(def.Tasks))
		for i, ref := range def.Tasks {
			clone.Tasks[i] = ref.Clone()
		}
	}
	return clone
}

// Validate ensures the definition is self-consistent.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("workflow: id is required")
	}
	if len(def.Tasks) == 0 {
		return fmt.Errorf("workflow %s: at least one task is required", def.ID)
	}
	seen := map[string]struct{}{}
	for idx, ref := range def.Tasks {
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("workflow %s task[%d]: %w", def.ID, idx, err)
		}
		instanceID := ref.InstanceID()
		if _, exists := seen[instanceID]; exists {
			return fmt.Errorf("workflow %s: duplicate task instance id %s", def.ID, instanceID)
		}
		seen[instanceID] = struct{}{}
	}
	for key, deps := range def.Graph {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("workflow %s: graph references unknown task %s", def.ID, key)
		}
		for _, dep := range deps {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("workflow %s: graph dependency %s -> %s references unknown task", def.ID, key, dep)
			}
			if dep == key {
				return fmt.Errorf("workflow %s: task %s depends on itself", def.ID, key)
			}
		}
	}
	if cycle := def.Graph.findCycle(); len(cycle) > 0 {
		return fmt.Errorf("workflow %s: dependency cycle %v", def.ID, cycle)
	}
	return nil
}

// Normalized clones the definition, merges any inline task dependencies into
// the graph, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	if clone.Graph == nil {
		clone.Graph = DependencyGraph{}
	}
	for _, ref := range clone.Tasks {
		id := ref.InstanceID()
		clone.Graph[id] = mergeDependencies(clone.Graph[id], ref.DependsOn)
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// TaskIDs returns the chain-scoped identifiers in declaration order.
func (def Definition) TaskIDs() []string {
	ids := make([]string, 0, len(def.Tasks))
	for _, ref := range def.Tasks {
		ids = append(ids, ref.InstanceID())
	}
	return ids
}

// Dependencies returns the dependency list for a task instance.
func (def Definition) Dependencies(id string) []string {
	if def.Graph == nil {
		return nil
	}
	deps := def.Graph[id]
	if len(deps) == 0 {
		return nil
	}
	clone := make([]string, len(deps))
	copy(clone, deps)
	return clone
}

// TaskRef describes how a chain composes and configures a registered task.
type TaskRef struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	TaskID      string     `json:"task" yaml:"task"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Config      TaskConfig `json:"config,omitempty" yaml:"config,omitempty"`
}

// Clone returns a deep copy of the task reference.
func (ref TaskRef) Clone() TaskRef {
	clone := TaskRef{
		ID:          ref.ID,
		TaskID:      ref.TaskID,
		Name:        ref.Name,
		Description: ref.Description,
	}
	if len(ref.DependsOn) > 0 {
		clone.DependsOn = cloneStringSlice(ref.DependsOn)
	}
	if len(ref.Config) > 0 {
		clone.Config = ref.Config.Clone()
	}
	return clone
}

// TaskConfig carries task-specific overrides (opaque to the runtime).
type TaskConfig map[string]any

// Clone returns a shallow copy of the config map.
func (cfg TaskConfig) Clone() TaskConfig {
	if len(cfg) == 0 {
		return nil
	}
	clone := make(TaskConfig, len(cfg))
	for key, value := range cfg {
		clone[key] = value
	}
	return clone
}

// InstanceID returns the chain-local identifier used by dependency graphs.
func (ref TaskRef) InstanceID() string {
	if ref.ID != "" {
		return ref.ID
	}
	return ref.TaskID
}

// Validate ensures the reference is usable.
func (ref TaskRef) Validate() error {
	if ref.TaskID == "" {
		return fmt.Errorf("workflow: task id is required")
	}
	deps := append([]string{}, ref.DependsOn...)
	sort.Strings(deps)
	for i := 1; i < len(deps); i++ {
		if deps[i] == deps[i-1] {
			return fmt.Errorf("workflow: task %s has duplicate dependency on %s", ref.InstanceID(), deps[i])
		}
	}
	return nil
}

func (g DependencyGraph) findCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(g))
	keys := make([]string, 0, len(g))
	for key := range g {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var stack []string
	var visit func(string) []string
	visit = func(id string) []string {
		switch marks[id] {
		case visiting:
			return append(append([]string{}, stack...), id)
		case done:
			return nil
		}
		marks[id] = visiting
		stack = append(stack, id)
		for _, dep := range g[id] {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		marks[id] = done
		return nil
	}
	for _, key := range keys {
		if cycle := visit(key); cycle != nil {
			return cycle
		}
	}
	return nil
}

func mergeDependencies(existing, adds []string) []string {
	if len(adds) == 0 && len(existing) == 0 {
		return nil
	}
	set := map[string]struct{}{}
	for _, id := range existing {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	for _, id := range adds {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
