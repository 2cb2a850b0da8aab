// Package gemini talks to the Gemini generateContent API. StreamContent reads
// a streamed extraction over server-sent events; Generate performs a single
// text-to-text call.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kingrea/reelscript/internal/task"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// ExtractInstruction asks the model for the spoken and shown text.
	ExtractInstruction = "Extract the text from this video."

	defaultContentType = "video/*"
)

// Config holds model selection and sampling parameters. A nil Temperature or
// TopP takes the default; a pointer to zero is sent as zero.
type Config struct {
	BaseURL         string
	ExtractionModel string
	GenerationModel string
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens int
}

// Float returns a pointer to v for Config's sampling fields.
func Float(v float64) *float64 {
	return &v
}

// DefaultConfig mirrors the parameters the extraction prompt was tuned with.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		ExtractionModel: "gemini-2.0-flash-001",
		GenerationModel: "gemini-2.5-flash",
		Temperature:     Float(1),
		TopP:            Float(0.95),
		MaxOutputTokens: 8192,
	}
}

// Client calls the Gemini API with an API key.
type Client struct {
	cfg    Config
	apiKey string
	http   *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client. Zero and nil fields of cfg fall back to DefaultConfig.
func New(apiKey string, cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = def.ExtractionModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = def.GenerationModel
	}
	if cfg.Temperature == nil {
		cfg.Temperature = def.Temperature
	}
	if cfg.TopP == nil {
		cfg.TopP = def.TopP
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	c := &Client{
		cfg:    cfg,
		apiKey: strings.TrimSpace(apiKey),
		http:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamContent starts a streamed extraction of the resource at locator.
// contentType defaults to "video/*". The caller must Close the stream.
func (c *Client) StreamContent(ctx context.Context, locator, contentType string) (*ChunkStream, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", task.ErrCredentialsMissing)
	}
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("gemini: %w: empty locator", task.ErrInputsMissing)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{FileData: &fileData{FileURI: locator, MimeType: contentType}},
				{Text: ExtractInstruction},
			},
		}},
		GenerationConfig: c.generationConfig(),
	}
	res, err := c.post(ctx, c.cfg.ExtractionModel, "streamGenerateContent", url.Values{"alt": {"sse"}}, body)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w: %v", task.ErrSourceUnavailable, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		return nil, fmt.Errorf("gemini: %w: %s", task.ErrSourceUnavailable, describeError(res))
	}
	return newChunkStream(res.Body), nil
}

// GenerateRequest is one text generation call.
type GenerateRequest struct {
	// Instruction is sent as the system instruction.
	Instruction string
	// Content is sent unmodified as the user turn.
	Content string
}

// Generate runs a single non-streaming generation and returns its text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini: %w", task.ErrCredentialsMissing)
	}
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Content}}}},
		GenerationConfig: c.generationConfig(),
	}
	if strings.TrimSpace(req.Instruction) != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.Instruction}}}
	}
	res, err := c.post(ctx, c.cfg.GenerationModel, "generateContent", nil, body)
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %v", task.ErrSourceUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("gemini: %w: %s", task.ErrGenerationFailure, describeError(res))
	}
	var parsed generateResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gemini: %w: decode response: %v", task.ErrGenerationFailure, err)
	}
	if reason := parsed.blockReason(); reason != "" {
		return "", fmt.Errorf("gemini: %w: prompt blocked (%s)", task.ErrGenerationFailure, reason)
	}
	text := strings.TrimSpace(parsed.text())
	if text == "" {
		return "", fmt.Errorf("gemini: %w: empty output (finish reason %q)", task.ErrGenerationFailure, parsed.finishReason())
	}
	return text, nil
}

func (c *Client) generationConfig() generationConfig {
	return generationConfig{
		Temperature:        Float(*c.cfg.Temperature),
		TopP:               Float(*c.cfg.TopP),
		MaxOutputTokens:    c.cfg.MaxOutputTokens,
		ResponseModalities: []string{"TEXT"},
	}
}

func (c *Client) post(ctx context.Context, model, method string, query url.Values, body any) (*http.Response, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/models/%s:%s?%s", c.cfg.BaseURL, url.PathEscape(model), method, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func describeError(res *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", res.StatusCode, parsed.Error.Message)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(res.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", res.StatusCode, text)
}
