package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoHeader reports an exported file without a provenance header.
	ErrNoHeader = errors.New("artifact: missing provenance header")
	// ErrBadHeader reports a provenance header that cannot be decoded.
	ErrBadHeader = errors.New("artifact: malformed provenance header")
	// ErrDigestMismatch reports a body edited after export.
	ErrDigestMismatch = errors.New("artifact: body does not match recorded digest")
)

const (
	fence     = "---\n"
	jsonField = "_reelscript"
)

// header is the provenance block written ahead of every exported value. The
// same shape is used as YAML front matter for text and as a JSON field for
// structured values.
type header struct {
	Artifact string            `yaml:"artifact" json:"artifact"`
	Task     string            `yaml:"task" json:"task"`
	Version  string            `yaml:"version" json:"version"`
	Workflow string            `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Run      string            `yaml:"run,omitempty" json:"run,omitempty"`
	Inputs   []string          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Created  time.Time         `yaml:"created" json:"created"`
	Digest   string            `yaml:"digest" json:"digest"`
	Notes    map[string]string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

type jsonDocument struct {
	Header header          `json:"_reelscript"`
	Value  json.RawMessage `json:"value"`
}

func newHeader(meta Metadata, body []byte) header {
	h := header{
		Artifact: meta.ArtifactID,
		Task:     meta.TaskID,
		Version:  meta.Version,
		Workflow: meta.Workflow,
		Run:      meta.RunID,
		Created:  meta.CreatedAt.UTC().Truncate(time.Second),
		Digest:   digest(body),
	}
	if len(meta.Inputs) > 0 {
		h.Inputs = append([]string(nil), meta.Inputs...)
	}
	if len(meta.Notes) > 0 {
		h.Notes = make(map[string]string, len(meta.Notes))
		for k, v := range meta.Notes {
			h.Notes[k] = v
		}
	}
	return h
}

func (h header) metadata(body []byte) (Metadata, error) {
	if h.Artifact == "" || h.Task == "" || h.Version == "" || h.Created.IsZero() {
		return Metadata{}, ErrBadHeader
	}
	if h.Digest != digest(body) {
		return Metadata{}, fmt.Errorf("%w: %s", ErrDigestMismatch, h.Artifact)
	}
	return Metadata{
		ArtifactID: h.Artifact,
		TaskID:     h.Task,
		Version:    h.Version,
		Workflow:   h.Workflow,
		RunID:      h.Run,
		Inputs:     h.Inputs,
		CreatedAt:  h.Created.UTC(),
		Notes:      h.Notes,
	}, nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// EncodeDocument renders value with its provenance header: text as markdown
// with YAML front matter, everything else as an indented JSON object.
func EncodeDocument(ref Ref, meta Metadata, value any) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("artifact: metadata missing artifact id")
	}
	if ref.Kind == KindText {
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects text, got %T", ErrTypeMismatch, ref.ID, value)
		}
		head, err := yaml.Marshal(newHeader(meta, []byte(text)))
		if err != nil {
			return nil, fmt.Errorf("artifact: encode header for %s: %w", ref.ID, err)
		}
		var buf bytes.Buffer
		buf.WriteString(fence)
		buf.Write(head)
		buf.WriteString(fence)
		buf.WriteString("\n")
		buf.WriteString(text)
		return buf.Bytes(), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	out, err := json.MarshalIndent(jsonDocument{Header: newHeader(meta, raw), Value: raw}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	return append(out, '\n'), nil
}

// DecodeDocument reverses EncodeDocument. The returned body is the text for
// text artifacts and the compact JSON value otherwise. A body that no longer
// matches the recorded digest fails with ErrDigestMismatch.
func DecodeDocument(ref Ref, data []byte) (Metadata, []byte, error) {
	if ref.Kind == KindText {
		return decodeText(data)
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if doc.Header.Artifact == "" {
		return Metadata{}, nil, ErrNoHeader
	}
	var body bytes.Buffer
	if err := json.Compact(&body, doc.Value); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	meta, err := doc.Header.metadata(body.Bytes())
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, body.Bytes(), nil
}

func decodeText(data []byte) (Metadata, []byte, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	rest, ok := bytes.CutPrefix(data, []byte(fence))
	if !ok {
		return Metadata{}, nil, ErrNoHeader
	}
	head, body, ok := bytes.Cut(rest, []byte("\n"+fence))
	if !ok {
		return Metadata{}, nil, ErrBadHeader
	}
	body = bytes.TrimPrefix(body, []byte("\n"))
	var h header
	if err := yaml.Unmarshal(head, &h); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	meta, err := h.metadata(body)
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, body, nil
}
