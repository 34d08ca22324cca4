package config

import (
	"os"
	"path/filepath"
)

// Config is the root system configuration (config.yaml).
type Config struct {
	ActiveProfile string                `yaml:"active_profile,omitempty"`
	Agent         AgentConfig           `yaml:"agent,omitempty"`
	System        SystemConfig          `yaml:"system"`
	Server        ServerConfig          `yaml:"server,omitempty"`
	Telemetry     TelemetryConfig       `yaml:"telemetry,omitempty"`
	Scripts       map[string]ScriptSpec `yaml:"scripts,omitempty"`
	ScriptsBackup map[string]ScriptSpec `yaml:"scripts_backup,omitempty"`
}

// AgentConfig holds fallback LLM credentials used when the active profile
// is missing from profiles.yaml.
type AgentConfig struct {
	OpenAIAPIKey  string `yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty"`
}

// SystemConfig groups host-level settings.
type SystemConfig struct {
	LogDir           string       `yaml:"log_dir,omitempty"`
	SkillStoragePath string       `yaml:"skill_storage_path,omitempty"`
	MaxWorkers       int          `yaml:"max_workers,omitempty"`
	Memory           MemoryConfig `yaml:"memory"`
}

// MemoryConfig controls the transcript window and the retrieval store.
type MemoryConfig struct {
	VectorStorePath string `yaml:"vector_store_path,omitempty"`
	ContextWindow   int    `yaml:"context_window,omitempty"`
	RetrieveTopK    int    `yaml:"retrieve_top_k,omitempty"`
	RAGStrategy     string `yaml:"rag_strategy,omitempty"` // semantic | hybrid_time | hybrid_lexical
	EnableSummary   *bool  `yaml:"enable_summary,omitempty"`
	EmbeddingModel  string `yaml:"embedding_model,omitempty"`
}

// ServerConfig configures the local HTTP/WebSocket listener. An empty
// origin whitelist allows every origin (local single-user default).
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, spans are exported to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `yaml:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `yaml:"insecure,omitempty"`     // plaintext for local dev
	ServiceName string            `yaml:"service_name,omitempty"` // default "resonance"
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// ScriptSpec is a legacy automation script entry. New installs use skill
// directories instead; these survive only until migration backs them up.
type ScriptSpec struct {
	Command     string  `yaml:"command" json:"command"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Cwd         string  `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Delay       float64 `yaml:"delay,omitempty" json:"delay,omitempty"`
	Timeout     int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SummaryEnabled reports whether summary compaction is on (default true).
func (m MemoryConfig) SummaryEnabled() bool {
	return m.EnableSummary == nil || *m.EnableSummary
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			LogDir:           "logs",
			SkillStoragePath: "SKILLS",
			MaxWorkers:       10,
			Memory: MemoryConfig{
				VectorStorePath: "vector_store",
				ContextWindow:   20,
				RetrieveTopK:    3,
				RAGStrategy:     "hybrid_lexical",
				EmbeddingModel:  "text-embedding-3-small",
			},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
	}
}

// Profile is one named LLM endpoint (profiles.yaml entry). The json tags
// are the config API wire shape.
type Profile struct {
	APIKey      string  `yaml:"api_key" json:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// UserProfile is the persistent user identity blob (user_profile.yaml).
// Facts land under user_info; project scans land under known_projects.
type UserProfile struct {
	UserInfo      map[string]string `yaml:"user_info,omitempty"`
	KnownProjects map[string]string `yaml:"known_projects,omitempty"`
}

// DefaultDataDir returns ~/.resonance, or a relative fallback when the
// home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".resonance"
	}
	return filepath.Join(home, ".resonance")
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
