package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDefaults(t *testing.T) {
	m := NewManager("")
	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.False(t, s.Mail.Enabled)
	assert.Equal(t, "Inbox", s.Mail.Folder)
	assert.Equal(t, VectorIndexLocal, s.VectorIndex.Mode)
	assert.Equal(t, CacheMemory, s.CacheBackend)
	assert.Equal(t, DefaultPollInterval, s.PollInterval)
}

func TestSnapshotFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
mail:
  enabled: true
  mailbox: ig@example.org
  outbound_sender: ig@example.org
teams:
  enabled: true
  team_id: team-1
  poll_interval: 30s
github:
  enabled: true
  token: ghp_dummy
vectorindex:
  mode: cloud
  url: https://vectors.example.org
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewManager(path)
	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.True(t, s.Mail.Enabled)
	assert.Equal(t, "ig@example.org", s.Mail.Mailbox)
	assert.Equal(t, 30*time.Second, s.Teams.PollInterval)
	assert.Equal(t, VectorIndexCloud, s.VectorIndex.Mode)
	assert.Equal(t, "https://vectors.example.org", s.VectorIndex.URL)
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := NewManager("")
	a, err := m.Snapshot()
	require.NoError(t, err)
	a.Mail.Mailbox = "mutated"

	b, err := m.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, b.Mail.Mailbox)
}

func TestOverrideHook(t *testing.T) {
	m := NewManager("")
	m.SetOverride(func(s *Settings) { s.GitHub.Enabled = true })
	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.True(t, s.GitHub.Enabled)
}
