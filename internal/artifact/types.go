// Package artifact defines the values tasks exchange through a run's state
// bag. Each artifact has a stable key, a kind, and a typed accessor so tasks
// never type-assert raw interface values themselves.

package artifact

import (
	"fmt"
	"strings"
	"time"
)

// Kind captures the shape of an artifact value and how it is exported.
type Kind string

const (
	// KindList is an ordered slice of records, exported as JSON.
	KindList Kind = "list"
	// KindRecord is a single structured record, exported as JSON.
	KindRecord Kind = "record"
	// KindText is free text, exported as a markdown document with YAML frontmatter.
	KindText Kind = "text"
)

// Ref declares a stable run-state key and its metadata.
type Ref struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
}

// Validate ensures the reference is well-formed.
func (r Ref) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	switch r.Kind {
	case KindList, KindRecord, KindText:
		return nil
	case "":
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	default:
		return fmt.Errorf("artifact: unknown kind %q for %s", r.Kind, r.ID)
	}
}

// FileName returns the export file name for the artifact.
func (r Ref) FileName() string {
	if r.Kind == KindText {
		return r.ID + ".md"
	}
	return r.ID + ".json"
}

// CandidateItem is one entry returned by the listing adapter.
type CandidateItem struct {
	ID      string `json:"id" yaml:"id"`
	Locator string `json:"locator" yaml:"locator"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
}

// SelectedItem is the single candidate chosen for a run.
type SelectedItem struct {
	ID      string `json:"id" yaml:"id"`
	Locator string `json:"locator" yaml:"locator"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Select converts a candidate into the run's selected item.
func (c CandidateItem) Select() SelectedItem {
	return SelectedItem{ID: c.ID, Locator: c.Locator, Title: c.Title}
}

// Validate reports whether the item can be handed to the extraction adapter.
func (s SelectedItem) Validate() error {
	if strings.TrimSpace(s.Locator) == "" {
		return fmt.Errorf("artifact: selected item %q has no locator", s.ID)
	}
	return nil
}

// Metadata captures provenance stored alongside exported artifacts.
type Metadata struct {
	ArtifactID string
	TaskID     string
	Version    string
	Workflow   string
	RunID      string
	Inputs     []string
	CreatedAt  time.Time
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref Ref, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref Ref) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.TaskID == "" {
		return fmt.Errorf("artifact: task id is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// helper to register global references
func register(ref Ref) Ref {
	if refs == nil {
		refs = map[string]Ref{}
	}
	refs[ref.ID] = ref
	ordered = append(ordered, ref)
	return ref
}

var (
	refs    map[string]Ref
	ordered []Ref
)

// Lookup returns a registered artifact reference by ID.
func Lookup(id string) (Ref, bool) {
	ref, ok := refs[strings.TrimSpace(id)]
	return ref, ok
}

// Refs returns the canonical references in chain order.
func Refs() []Ref {
	return append([]Ref{}, ordered...)
}

// Canonical run-state keys for the script chain.
var (
	Candidates        = register(Ref{ID: "videos", Name: "Candidate Videos", Description: "Ordered videos listed from the configured playlist", Kind: KindList})
	Selected          = register(Ref{ID: "video", Name: "Selected Video", Description: "The one video chosen for this run", Kind: KindRecord})
	ExtractedContent  = register(Ref{ID: "extracted_text", Name: "Extracted Text", Description: "Transcript text extracted from the selected video", Kind: KindText})
	GeneratedArtifact = register(Ref{ID: "generated_script", Name: "Voiceover Script", Description: "Short-video voiceover script derived from the transcript", Kind: KindText})
)
