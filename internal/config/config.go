// internal/config/config.go
//
// This package handles configuration and the .reelscript directory structure.
// Credentials come from the environment (optionally seeded from a .env file);
// everything else comes from .reelscript/config.yaml with built-in defaults.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/reelscript/internal/task"
)

const (
	// DataDir is the name of the directory we create in each project
	DataDir = ".reelscript"

	defaultWorkflowID = "reel-script"
)

// Environment variables holding credentials.
const (
	EnvYouTubeAPIKey   = "YOUTUBE_API_KEY"
	EnvYouTubePlaylist = "YOUTUBE_PLAYLIST_UPLOAD_ID"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvPort            = "PORT"
)

const defaultProjectConfigYAML = `# reelscript project configuration
version: 1

youtube:
  base_url: https://www.googleapis.com/youtube/v3
  page_size: 50

gemini:
  base_url: https://generativelanguage.googleapis.com/v1beta
  extraction_model: gemini-2.0-flash-001
  generation_model: gemini-2.5-flash
  temperature: 1
  top_p: 0.95
  max_output_tokens: 8192

timeouts:
  listing: 30s
  extraction: 5m
  transform: 2m

script:
  audience: female
  tone: direct, simple, animated, engaging and inclusive
  max_words: 150
  focus: the most engaging section or one specific topic

limits:
  max_content_chars: 200000

workflows:
  default: reel-script
`

// YouTubeConfig configures the listing adapter.
type YouTubeConfig struct {
	BaseURL  string `yaml:"base_url"`
	PageSize int    `yaml:"page_size"`
}

// GeminiConfig configures the extraction and transform adapters.
type GeminiConfig struct {
	BaseURL         string  `yaml:"base_url"`
	ExtractionModel string  `yaml:"extraction_model"`
	GenerationModel string  `yaml:"generation_model"`
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// TimeoutConfig holds per-adapter deadlines.
type TimeoutConfig struct {
	Listing    Duration `yaml:"listing"`
	Extraction Duration `yaml:"extraction"`
	Transform  Duration `yaml:"transform"`
}

// ScriptConfig holds the style directives handed to the transform step.
type ScriptConfig struct {
	Audience string `yaml:"audience"`
	Tone     string `yaml:"tone"`
	MaxWords int    `yaml:"max_words"`
	Focus    string `yaml:"focus"`
}

// LimitsConfig bounds what the transform task accepts.
type LimitsConfig struct {
	MaxContentChars int `yaml:"max_content_chars"`
}

// WorkflowConfig captures chain preferences.
type WorkflowConfig struct {
	Default string `yaml:"default"`
}

// ProjectConfig models .reelscript/config.yaml.
type ProjectConfig struct {
	Version   int            `yaml:"version"`
	YouTube   YouTubeConfig  `yaml:"youtube"`
	Gemini    GeminiConfig   `yaml:"gemini"`
	Timeouts  TimeoutConfig  `yaml:"timeouts"`
	Script    ScriptConfig   `yaml:"script"`
	Limits    LimitsConfig   `yaml:"limits"`
	Workflows WorkflowConfig `yaml:"workflows"`
}

// Credentials are read from the environment only.
type Credentials struct {
	YouTubeAPIKey string
	PlaylistID    string
	GoogleAPIKey  string
}

// Config holds the runtime configuration for reelscript.
type Config struct {
	// ProjectDir is the directory reelscript was started from
	ProjectDir string

	// DataDir is ProjectDir/.reelscript
	DataDir string

	Project     ProjectConfig
	Credentials Credentials
}

// Duration is a time.Duration that reads "30s"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// InitDataDir creates the .reelscript directory structure in the given
// project directory and writes a default config.yaml if none exists.
//
// Structure created:
// .reelscript/
// ├── config.yaml
// ├── logs/       <- process log
// ├── runs/       <- one folder per run (state.json, journal.log, exports)
// └── workflows/  <- optional YAML chain definitions
func InitDataDir(projectDir string) error {
	dataDir := filepath.Join(projectDir, DataDir)

	dirs := []string{
		filepath.Join(dataDir, "logs"),
		filepath.Join(dataDir, "runs"),
		filepath.Join(dataDir, "workflows"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := ensureProjectConfig(filepath.Join(dataDir, "config.yaml")); err != nil {
		return err
	}

	return nil
}

// NewConfig creates a new Config instance populated with project settings and
// environment credentials. A .env file in the project directory is loaded
// first; variables already set in the environment win.
func NewConfig(projectDir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(projectDir, ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectDir:  projectDir,
		DataDir:     filepath.Join(projectDir, DataDir),
		Project:     defaultProjectConfig(),
		Credentials: CredentialsFromEnv(),
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CredentialsFromEnv reads adapter credentials from the process environment.
func CredentialsFromEnv() Credentials {
	return Credentials{
		YouTubeAPIKey: strings.TrimSpace(os.Getenv(EnvYouTubeAPIKey)),
		PlaylistID:    strings.TrimSpace(os.Getenv(EnvYouTubePlaylist)),
		GoogleAPIKey:  strings.TrimSpace(os.Getenv(EnvGoogleAPIKey)),
	}
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ValidateListing reports whether the listing adapter can be built.
func (c *Config) ValidateListing() error {
	var missing []string
	if c.Credentials.YouTubeAPIKey == "" {
		missing = append(missing, EnvYouTubeAPIKey)
	}
	if c.Credentials.PlaylistID == "" {
		missing = append(missing, EnvYouTubePlaylist)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: %w: %s must be set", task.ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateGemini reports whether the extraction and transform adapters can be built.
func (c *Config) ValidateGemini() error {
	if c.Credentials.GoogleAPIKey == "" {
		return fmt.Errorf("config: %w: %s must be set", task.ErrCredentialsMissing, EnvGoogleAPIKey)
	}
	return nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DataDir, "config.yaml")
}

// DefaultWorkflow returns the configured default chain identifier.
func (c *Config) DefaultWorkflow() string {
	return c.Project.Workflows.Default
}

// Port returns the HTTP port from $PORT, defaulting to 8080.
func (c *Config) Port() string {
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		return port
	}
	return "8080"
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	// Fields seeded here rather than in applyDefaults keep an explicit 0 in
	// config.yaml.
	pc := ProjectConfig{
		Gemini: GeminiConfig{Temperature: 1, TopP: 0.95},
		Limits: LimitsConfig{MaxContentChars: 200000},
	}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.YouTube.BaseURL == "" {
		pc.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if pc.YouTube.PageSize == 0 {
		pc.YouTube.PageSize = 50
	}
	if pc.Gemini.BaseURL == "" {
		pc.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if pc.Gemini.ExtractionModel == "" {
		pc.Gemini.ExtractionModel = "gemini-2.0-flash-001"
	}
	if pc.Gemini.GenerationModel == "" {
		pc.Gemini.GenerationModel = "gemini-2.5-flash"
	}
	if pc.Gemini.MaxOutputTokens == 0 {
		pc.Gemini.MaxOutputTokens = 8192
	}
	if pc.Timeouts.Listing == 0 {
		pc.Timeouts.Listing = Duration(30 * time.Second)
	}
	if pc.Timeouts.Extraction == 0 {
		pc.Timeouts.Extraction = Duration(5 * time.Minute)
	}
	if pc.Timeouts.Transform == 0 {
		pc.Timeouts.Transform = Duration(2 * time.Minute)
	}
	if pc.Script.Audience == "" {
		pc.Script.Audience = "female"
	}
	if pc.Script.Tone == "" {
		pc.Script.Tone = "direct, simple, animated, engaging and inclusive"
	}
	if pc.Script.MaxWords == 0 {
		pc.Script.MaxWords = 150
	}
	if pc.Script.Focus == "" {
		pc.Script.Focus = "the most engaging section or one specific topic"
	}
	if pc.Workflows.Default == "" {
		pc.Workflows.Default = defaultWorkflowID
	}
}

func (pc *ProjectConfig) normalize() {
	pc.YouTube.BaseURL = strings.TrimRight(strings.TrimSpace(pc.YouTube.BaseURL), "/")
	pc.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(pc.Gemini.BaseURL), "/")
	pc.Workflows.Default = strings.TrimSpace(pc.Workflows.Default)
	if pc.YouTube.PageSize > 50 {
		pc.YouTube.PageSize = 50
	}
	if pc.Limits.MaxContentChars < 0 {
		pc.Limits.MaxContentChars = 0
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.YouTube.PageSize < 1 {
		return fmt.Errorf("youtube.page_size must be between 1 and 50")
	}
	if pc.Gemini.Temperature < 0 || pc.Gemini.Temperature > 2 {
		return fmt.Errorf("gemini.temperature must be between 0 and 2")
	}
	if pc.Gemini.TopP < 0 || pc.Gemini.TopP > 1 {
		return fmt.Errorf("gemini.top_p must be between 0 and 1")
	}
	if pc.Gemini.MaxOutputTokens < 0 {
		return fmt.Errorf("gemini.max_output_tokens must be >= 0")
	}
	if pc.Timeouts.Listing < 0 || pc.Timeouts.Extraction < 0 || pc.Timeouts.Transform < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if pc.Script.MaxWords < 0 {
		return fmt.Errorf("script.max_words must be >= 0")
	}
	if strings.TrimSpace(pc.Workflows.Default) == "" {
		return fmt.Errorf("workflows.default is required")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
