package main

import (
	"fmt"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/classify"
	"ideagraph/internal/config"
	"ideagraph/internal/extract"
	"ideagraph/internal/github"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/rag"
	"ideagraph/internal/store"
)

// app lazily wires shared dependencies once per invocation. Commands pull
// what they need; nothing external is dialed until a command runs.
type app struct {
	configPath string
	manager    *config.Manager
	settings   config.Settings
	logger     logging.Logger

	db *store.Store
}

// load reads settings. Called before every command; a broken config file is
// a hard configuration error.
func (a *app) load() error {
	a.manager = config.NewManager(a.configPath)
	settings, err := a.manager.Snapshot()
	if err != nil {
		return configErr(err)
	}
	a.settings = settings
	a.logger = logging.NewComponentLogger("cli")
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

// openStore opens the SQLite database on first use.
func (a *app) openStore() (*store.Store, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(a.settings.DatabasePath)
	if err != nil {
		return nil, configErr(fmt.Errorf("open database %s: %w", a.settings.DatabasePath, err))
	}
	a.db = db
	return db, nil
}

func (a *app) gateway() agentgw.Gateway {
	return agentgw.NewClient(a.settings.Agent, logging.NewComponentLogger("agent-gateway"))
}

func (a *app) graph() *msgraph.Client {
	return msgraph.NewClient(a.settings.Graph, logging.NewComponentLogger("msgraph"))
}

func (a *app) github() *github.Client {
	return github.NewClient(a.settings.GitHub, "", logging.NewComponentLogger("github"))
}

func (a *app) extractor() *extract.Extractor {
	return extract.New(logging.NewComponentLogger("extract"))
}

// knowledgeSync builds the index-backed sync layer. A disabled index
// degrades every sync call to a no-op instead of failing commands.
func (a *app) knowledgeSync(st *store.Store) (*knowledge.Sync, error) {
	index, err := knowledge.NewIndexFromSettings(a.settings.VectorIndex, a.settings.LLMDirect)
	if err != nil {
		return nil, configErr(fmt.Errorf("vector index: %w", err))
	}
	return knowledge.NewSync(st, index, a.settings.Server.BaseURL, logging.NewComponentLogger("knowledge-sync")), nil
}

func (a *app) pipeline(sync *knowledge.Sync) *rag.Pipeline {
	return rag.New(a.gateway(), sync.Index(), logging.NewComponentLogger("rag"))
}

func (a *app) classifier(sync *knowledge.Sync) *classify.Classifier {
	return classify.New(a.gateway(), a.pipeline(sync), a.settings.DefaultItemID,
		logging.NewComponentLogger("classify"))
}

func (a *app) resolver(st *store.Store) *identity.Resolver {
	return identity.NewResolver(st)
}
