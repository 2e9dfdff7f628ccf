// Package logs implements log analysis: recent errors are fetched from the
// local component log or from Sentry, mined for actionable work by the
// task-derivation agent, and optionally turned into tasks.
package logs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/store"
)

// Fetcher produces raw log material for analysis.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// DefaultMaxBytes bounds how much of the local log file is read.
const DefaultMaxBytes = 256 * 1024

// LocalFetcher reads the tail of the component log file, keeping WARN and
// above.
type LocalFetcher struct {
	// Path overrides the active log file. Empty means the process's own log.
	Path     string
	MaxBytes int64
}

func (f *LocalFetcher) Fetch(ctx context.Context) (string, error) {
	path := f.Path
	if path == "" {
		path = logging.LogFilePath()
	}
	if path == "" {
		return "", igerrors.Disabled("file logging")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open log %s: %w", path, err)
	}
	defer file.Close()

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	truncated := false
	if info, err := file.Stat(); err == nil && info.Size() > maxBytes {
		if _, err := file.Seek(info.Size()-maxBytes, io.SeekStart); err != nil {
			return "", fmt.Errorf("seek log tail: %w", err)
		}
		truncated = true
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if truncated && len(lines) > 1 {
		// The tail cut may land mid-line.
		lines = lines[1:]
	}
	var kept []string
	for _, line := range lines {
		if isProblemLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func isProblemLine(line string) bool {
	return strings.Contains(line, "[WARN]") ||
		strings.Contains(line, "[ERROR]") ||
		strings.Contains(line, "[CRITICAL]")
}

// Analyzer mines fetched log material for actionable work.
type Analyzer struct {
	gateway agentgw.Gateway
	store   *store.Store
	sync    *knowledge.Sync
	logger  logging.Logger
}

// NewAnalyzer wires a log analyzer. store and sync may be nil when task
// creation is not wanted.
func NewAnalyzer(gateway agentgw.Gateway, st *store.Store, sync *knowledge.Sync, logger logging.Logger) *Analyzer {
	return &Analyzer{gateway: gateway, store: st, sync: sync, logger: logging.OrNop(logger)}
}

// Analyze derives task proposals from log text. Empty input yields no
// proposals without an agent round-trip.
func (a *Analyzer) Analyze(ctx context.Context, logText string) ([]domain.ProposedTask, error) {
	logText = strings.TrimSpace(logText)
	if logText == "" {
		return nil, nil
	}

	prompt := "The following are recent warning and error log lines from a task-management " +
		"service. Identify recurring or severe problems worth a task each. " +
		"Respond as JSON: {\"tasks\":[{\"title\",\"description\"}]}. " +
		"Return an empty list when nothing needs action.\n\n" + logText
	res, err := a.gateway.Invoke(ctx, agentgw.AgentTaskDerivation, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("log analysis: %w", err)
	}
	payload, err := agentgw.Decode[agentgw.TaskDerivationResult](res.Result)
	if err != nil {
		return nil, fmt.Errorf("log analysis: %w", err)
	}

	var proposed []domain.ProposedTask
	for _, t := range payload.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		proposed = append(proposed, domain.ProposedTask{
			Title:       strings.TrimSpace(t.Title),
			Description: strings.TrimSpace(t.Description),
		})
	}
	return proposed, nil
}

// CreateTasks turns proposals into tasks under the given item, skipping
// titles that already exist there.
func (a *Analyzer) CreateTasks(ctx context.Context, itemID string, proposed []domain.ProposedTask) ([]*domain.Task, error) {
	if a.store == nil {
		return nil, igerrors.Disabled("task creation")
	}
	if itemID == "" {
		return nil, fmt.Errorf("no item configured for derived tasks")
	}

	existing, err := a.store.ListTasksByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[strings.ToLower(t.Title)] = true
	}

	var created []*domain.Task
	for _, p := range proposed {
		if seen[strings.ToLower(p.Title)] {
			a.logger.Debug("log analysis: skipping existing task %q", p.Title)
			continue
		}
		task := &domain.Task{Title: p.Title, Description: p.Description, ItemID: itemID}
		if err := a.store.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("create task %q: %w", p.Title, err)
		}
		if a.sync != nil {
			a.sync.SyncTask(ctx, task)
		}
		created = append(created, task)
	}
	return created, nil
}
