package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"ideagraph/internal/logging"
)

// Manager re-reads settings on demand so live edits take effect at the next
// operation boundary. Snapshot never returns shared mutable state.
type Manager struct {
	mu       sync.Mutex
	path     string
	override func(*Settings) // test hook
	logger   logging.Logger
}

// NewManager creates a settings manager. path may be empty, in which case
// only defaults and environment variables apply.
func NewManager(path string) *Manager {
	return &Manager{path: path, logger: logging.NewComponentLogger("config")}
}

// Snapshot loads a fresh immutable Settings value.
func (m *Manager) Snapshot() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("IDEAGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if m.path != "" {
		v.SetConfigFile(m.path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", m.path, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if m.override != nil {
		m.override(&settings)
	}
	return settings, nil
}

// SetOverride installs a mutation applied after each load. Test-only hook.
func (m *Manager) SetOverride(fn func(*Settings)) {
	m.mu.Lock()
	m.override = fn
	m.mu.Unlock()
}

// LogStartup emits the configuration summary without credential values.
func (m *Manager) LogStartup(s Settings) {
	m.logger.Info("mail: enabled=%v mailbox=%s", s.Mail.Enabled, s.Mail.Mailbox)
	m.logger.Info("teams: enabled=%v team=%s", s.Teams.Enabled, s.Teams.TeamID)
	m.logger.Info("github: enabled=%v token %s", s.GitHub.Enabled, logging.SecretInfo(s.GitHub.Token))
	m.logger.Info("agent: enabled=%v url=%s token %s", s.Agent.Enabled, s.Agent.BaseURL, logging.SecretInfo(s.Agent.Token))
	m.logger.Info("vectorindex: mode=%s key %s", s.VectorIndex.Mode, logging.SecretInfo(s.VectorIndex.Key))
	m.logger.Info("websearch: google=%v brave key %s", s.WebSearch.GoogleEnabled, logging.SecretInfo(s.WebSearch.BraveKey))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.folder", "Inbox")
	v.SetDefault("teams.enabled", false)
	v.SetDefault("teams.poll_interval", DefaultPollInterval)
	v.SetDefault("github.enabled", false)
	v.SetDefault("agent.enabled", false)
	v.SetDefault("agent.max_tokens", DefaultAgentMaxTokens)
	v.SetDefault("llm_direct.enabled", false)
	v.SetDefault("llm_direct.default_model", "text-embedding-3-small")
	v.SetDefault("llm_direct.base_url", "https://api.openai.com/v1")
	v.SetDefault("vectorindex.mode", string(VectorIndexLocal))
	v.SetDefault("vectorindex.path", "")
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("server.addr", DefaultHTTPAddr)
	v.SetDefault("cache_backend", string(CacheMemory))
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("database_path", "ideagraph.db")
}
