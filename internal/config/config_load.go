package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store owns the three YAML files under the data root. All mutations go
// through it so runtime edits (UI endpoints, remember_user_fact) and
// in-flight turns never race: readers take an immutable Snapshot.
type Store struct {
	mu   sync.RWMutex
	root string

	cfg      *Config
	profiles map[string]Profile
	user     *UserProfile
}

// Snapshot is a point-in-time copy of all configuration. Turns resolve it
// once on entry and keep it for their whole duration; later mutations
// replace the Store's state without touching live snapshots.
type Snapshot struct {
	Config   Config
	Profiles map[string]Profile
	User     UserProfile
	Root     string
}

type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Open loads config.yaml, profiles.yaml and user_profile.yaml from root,
// creating defaults for any missing file. Env vars overlay file values.
func Open(root string) (*Store, error) {
	if root == "" {
		root = DefaultDataDir()
	}
	root = ExpandHome(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		root:     root,
		cfg:      Default(),
		profiles: map[string]Profile{},
		user:     &UserProfile{},
	}

	if err := readYAML(s.configPath(), s.cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var pf profilesFile
	if err := readYAML(s.profilesPath(), &pf); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if pf.Profiles != nil {
		s.profiles = pf.Profiles
	}
	if err := readYAML(s.userProfilePath(), s.user); err != nil {
		return nil, fmt.Errorf("load user profile: %w", err)
	}

	s.applyEnvOverrides()
	return s, nil
}

func (s *Store) configPath() string      { return filepath.Join(s.root, "config.yaml") }
func (s *Store) profilesPath() string    { return filepath.Join(s.root, "profiles.yaml") }
func (s *Store) userProfilePath() string { return filepath.Join(s.root, "user_profile.yaml") }

// Root returns the data root directory.
func (s *Store) Root() string { return s.root }

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (s *Store) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("RESONANCE_OPENAI_API_KEY", &s.cfg.Agent.OpenAIAPIKey)
	envStr("RESONANCE_OPENAI_BASE_URL", &s.cfg.Agent.OpenAIBaseURL)
	envStr("RESONANCE_ACTIVE_PROFILE", &s.cfg.ActiveProfile)
	envStr("RESONANCE_HOST", &s.cfg.Server.Host)
	if v := os.Getenv("RESONANCE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			s.cfg.Server.Port = port
		}
	}
	envStr("RESONANCE_RAG_STRATEGY", &s.cfg.System.Memory.RAGStrategy)
	envStr("RESONANCE_EMBEDDING_MODEL", &s.cfg.System.Memory.EmbeddingModel)

	envStr("RESONANCE_TELEMETRY_ENDPOINT", &s.cfg.Telemetry.Endpoint)
	envStr("RESONANCE_TELEMETRY_PROTOCOL", &s.cfg.Telemetry.Protocol)
	envStr("RESONANCE_TELEMETRY_SERVICE_NAME", &s.cfg.Telemetry.ServiceName)
	if v := os.Getenv("RESONANCE_TELEMETRY_ENABLED"); v != "" {
		s.cfg.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RESONANCE_TELEMETRY_INSECURE"); v != "" {
		s.cfg.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Snapshot returns an immutable copy of the full configuration state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		profiles[id] = p
	}
	user := UserProfile{
		UserInfo:      copyStringMap(s.user.UserInfo),
		KnownProjects: copyStringMap(s.user.KnownProjects),
	}
	cfg := *s.cfg
	cfg.Scripts = copyScriptMap(s.cfg.Scripts)
	cfg.ScriptsBackup = copyScriptMap(s.cfg.ScriptsBackup)

	return Snapshot{Config: cfg, Profiles: profiles, User: user, Root: s.root}
}

// UpdateConfig applies fn to the config under lock and persists the result.
func (s *Store) UpdateConfig(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.cfg); err != nil {
		return err
	}
	return writeYAML(s.configPath(), s.cfg)
}

// UpdateProfiles applies fn to the profile map under lock and persists it.
func (s *Store) UpdateProfiles(fn func(map[string]Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.profiles); err != nil {
		return err
	}
	return writeYAML(s.profilesPath(), profilesFile{Profiles: s.profiles})
}

// UpdateUserProfile applies fn to the user profile under lock and persists it.
func (s *Store) UpdateUserProfile(fn func(*UserProfile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user.UserInfo == nil {
		s.user.UserInfo = map[string]string{}
	}
	if s.user.KnownProjects == nil {
		s.user.KnownProjects = map[string]string{}
	}
	if err := fn(s.user); err != nil {
		return err
	}
	return writeYAML(s.userProfilePath(), s.user)
}

// SetActiveProfile switches the active LLM profile and persists config.yaml.
func (s *Store) SetActiveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("profile %q not found", id)
	}
	s.cfg.ActiveProfile = id
	return writeYAML(s.configPath(), s.cfg)
}

// ActiveProfile resolves the active profile, falling back to the agent
// section's credentials when the configured id is missing.
func (sn Snapshot) ActiveProfile() (string, Profile) {
	if p, ok := sn.Profiles[sn.Config.ActiveProfile]; ok {
		return sn.Config.ActiveProfile, p
	}
	return "", Profile{
		APIKey:      sn.Config.Agent.OpenAIAPIKey,
		BaseURL:     sn.Config.Agent.OpenAIBaseURL,
		Model:       "gpt-3.5-turbo",
		Temperature: 0.7,
	}
}

// SessionsDir returns the transcript directory under the data root.
func (sn Snapshot) SessionsDir() string { return filepath.Join(sn.Root, "sessions") }

// VectorStoreDir resolves the retrieval store path (absolute wins).
func (sn Snapshot) VectorStoreDir() string {
	return sn.resolve(sn.Config.System.Memory.VectorStorePath, "vector_store")
}

// SkillsDir resolves the skill storage root (absolute wins).
func (sn Snapshot) SkillsDir() string {
	return sn.resolve(sn.Config.System.SkillStoragePath, "SKILLS")
}

// LogDir resolves the log directory (absolute wins).
func (sn Snapshot) LogDir() string {
	return sn.resolve(sn.Config.System.LogDir, "logs")
}

// WorkspaceDir is the default working directory for script execution.
func (sn Snapshot) WorkspaceDir() string {
	return filepath.Join(sn.LogDir(), "workspace")
}

// SentinelsPath is the sentinel persistence file.
func (sn Snapshot) SentinelsPath() string { return filepath.Join(sn.Root, "sentinels.json") }

func (sn Snapshot) resolve(configured, fallback string) string {
	p := configured
	if p == "" {
		p = fallback
	}
	p = ExpandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(sn.Root, p)
}

const secretMask = "***"

// MaskedProfiles returns a copy of the profile map with API keys masked.
// Used by the config endpoints to avoid exposing secrets to clients.
func (s *Store) MaskedProfiles() map[string]Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		if p.APIKey != "" {
			p.APIKey = secretMask
		}
		out[id] = p
	}
	return out
}

// UnmaskProfile restores the stored API key when a client round-trips the
// masked value back through an update.
func (s *Store) UnmaskProfile(id string, p Profile) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p.APIKey == secretMask {
		if existing, ok := s.profiles[id]; ok {
			p.APIKey = existing.APIKey
		}
	}
	return p
}

func readYAML(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, dst)
}

// writeYAML persists atomically: temp file → fsync → rename.
func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyScriptMap(m map[string]ScriptSpec) map[string]ScriptSpec {
	if m == nil {
		return nil
	}
	out := make(map[string]ScriptSpec, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
