package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ideagraph/internal/advisor"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/mover"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/poller"
	"ideagraph/internal/server"
	"ideagraph/internal/store"
	"ideagraph/internal/websearch"
)

func newServeCommand(app *app) *cobra.Command {
	var noPollers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the enabled source pollers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, noPollers)
		},
	}
	cmd.Flags().BoolVar(&noPollers, "no-pollers", false, "serve the API without scheduling pollers")
	return cmd
}

func runServe(ctx context.Context, app *app, noPollers bool) error {
	st, err := app.openStore()
	if err != nil {
		return err
	}
	sync, err := app.knowledgeSync(st)
	if err != nil {
		return err
	}
	app.manager.LogStartup(app.settings)

	gateway := app.gateway()
	graph := app.graph()

	searcher, err := websearch.New(app.settings.WebSearch, logging.NewComponentLogger("websearch"))
	if err != nil {
		return configErr(err)
	}
	adv := advisor.New(gateway, sync.Index(), searcher, logging.NewComponentLogger("advisor"))
	mv := mover.New(st, graph, sync, graph, app.settings.Mail.OutboundSender,
		logging.NewComponentLogger("mover"))

	srv := server.New(app.settings, st, sync, app.extractor(), app.pipeline(sync), adv, mv, graph,
		logging.NewComponentLogger("http"))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(ctx) })

	if !noPollers {
		orch, err := buildOrchestrator(app, st, sync, graph)
		if err != nil {
			return err
		}
		group.Go(func() error {
			orch.Start(ctx)
			<-ctx.Done()
			orch.Stop()
			return nil
		})
	}
	return group.Wait()
}

// buildOrchestrator schedules every configured poller. Sources disabled in
// settings are still scheduled; their first tick pauses them, so enabling a
// source only needs a restart, not a code path change.
func buildOrchestrator(app *app, st *store.Store, sync *knowledge.Sync, graph *msgraph.Client) (*poller.Orchestrator, error) {
	gateway := app.gateway()
	classifier := app.classifier(sync)
	resolver := app.resolver(st)
	extractor := app.extractor()

	orch := poller.NewOrchestrator(logging.NewComponentLogger("scheduler"))

	mail := poller.NewMailPoller(app.settings, graph, extractor, classifier, resolver, st, sync,
		logging.NewComponentLogger("mail-poller"))
	if err := orch.Add(mail, app.settings.PollInterval); err != nil {
		return nil, err
	}

	teams := poller.NewTeamsPoller(app.settings, graph, gateway, extractor, classifier, resolver,
		st, sync, logging.NewComponentLogger("teams-poller"))
	if err := orch.Add(teams, app.settings.Teams.PollInterval); err != nil {
		return nil, err
	}

	gh := poller.NewGitHubPoller(app.settings, app.github(), resolver, st, sync,
		logging.NewComponentLogger("github-poller"))
	if err := orch.Add(gh, app.settings.PollInterval); err != nil {
		return nil, err
	}
	return orch, nil
}
