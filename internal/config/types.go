// Package config loads and snapshots process-wide settings.
//
// Settings are read through viper (defaults, optional YAML file, environment)
// and handed out as immutable snapshots: a component takes one Settings value
// at the start of an operation and never re-reads mid-flight, so live edits
// apply on the next operation, never in the middle of one.
package config

import "time"

// Defaults shared across binaries.
const (
	DefaultPollInterval    = 60 * time.Second
	DefaultAgentTimeout    = 30 * time.Second
	DefaultUploadTimeout   = 60 * time.Second
	DefaultAgentMaxTokens  = 4096
	DefaultGraphTokenTTL   = 55 * time.Minute
	DefaultMaxFetchPerTick = 25
	DefaultHTTPAddr        = ":8080"
)

// MailSettings configures the mailbox poller and outbound mail.
type MailSettings struct {
	Enabled        bool   `mapstructure:"enabled"`
	Mailbox        string `mapstructure:"mailbox"`
	Folder         string `mapstructure:"folder"`
	OutboundSender string `mapstructure:"outbound_sender"`
	// ProcessedFolder receives handled messages; empty leaves them in place.
	ProcessedFolder string `mapstructure:"processed_folder"`
}

// TeamsSettings configures the Teams channel poller.
type TeamsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	TeamID  string `mapstructure:"team_id"`
	// WelcomeTemplate overrides the acknowledgement posted on task creation.
	// {{title}} and {{token}} expand to the task title and thread token.
	WelcomeTemplate string `mapstructure:"welcome_template"`
	// BotUPN identifies the service principal whose own messages the poller
	// must drop to avoid reply loops.
	BotUPN       string        `mapstructure:"bot_upn"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// GitHubSettings configures the GitHub issue poller.
type GitHubSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Token        string `mapstructure:"token"`
	DefaultOwner string `mapstructure:"default_owner"`
	DefaultRepo  string `mapstructure:"default_repo"`
	CopilotUser  string `mapstructure:"copilot_user"`
}

// AgentSettings configures the agent gateway client.
type AgentSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// LLMDirectSettings configures the optional direct LLM access used for
// embeddings.
type LLMDirectSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Key          string `mapstructure:"key"`
	DefaultModel string `mapstructure:"default_model"`
	BaseURL      string `mapstructure:"base_url"`
}

// VectorIndexMode selects the vector index backend.
type VectorIndexMode string

const (
	VectorIndexLocal VectorIndexMode = "local"
	VectorIndexCloud VectorIndexMode = "cloud"
)

// VectorIndexSettings configures the knowledge collection backend.
type VectorIndexSettings struct {
	Mode VectorIndexMode `mapstructure:"mode"`
	URL  string          `mapstructure:"url"`
	Key  string          `mapstructure:"key"`
	// Path is the persistence directory for local mode.
	Path string `mapstructure:"path"`
}

// WebSearchSettings configures the external advisor search providers.
type WebSearchSettings struct {
	GoogleEnabled bool   `mapstructure:"google_enabled"`
	GoogleKey     string `mapstructure:"google_key"`
	GoogleCX      string `mapstructure:"google_cx"`
	BraveKey      string `mapstructure:"brave_key"`
}

// CacheBackend selects the read-through cache backend.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheShared CacheBackend = "shared"
)

// GraphSettings configures Microsoft Graph access.
type GraphSettings struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// DriveID is the document library receiving task file folders.
	DriveID string `mapstructure:"drive_id"`
	BaseURL string `mapstructure:"base_url"`
}

// ServerSettings configures the HTTP API surface.
type ServerSettings struct {
	Addr string `mapstructure:"addr"`
	// BaseURL is used to build deep links stored on knowledge objects.
	BaseURL string `mapstructure:"base_url"`
}

// SentrySettings configures the optional log-analysis fetch source.
type SentrySettings struct {
	DSNProject string `mapstructure:"project"`
	Token      string `mapstructure:"token"`
	OrgSlug    string `mapstructure:"org"`
}

// Settings is an immutable snapshot of all process-wide configuration.
type Settings struct {
	Mail        MailSettings        `mapstructure:"mail"`
	Teams       TeamsSettings       `mapstructure:"teams"`
	GitHub      GitHubSettings      `mapstructure:"github"`
	Agent       AgentSettings       `mapstructure:"agent"`
	LLMDirect   LLMDirectSettings   `mapstructure:"llm_direct"`
	VectorIndex VectorIndexSettings `mapstructure:"vectorindex"`
	WebSearch   WebSearchSettings   `mapstructure:"websearch"`
	Graph       GraphSettings       `mapstructure:"graph"`
	Server      ServerSettings      `mapstructure:"server"`
	Sentry      SentrySettings      `mapstructure:"sentry"`

	CacheBackend CacheBackend  `mapstructure:"cache_backend"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DatabasePath string        `mapstructure:"database_path"`
	// DefaultItemID receives classified tasks when the classifier returns no
	// suitable item. Empty means such messages are ignored.
	DefaultItemID string `mapstructure:"default_item_id"`
}
