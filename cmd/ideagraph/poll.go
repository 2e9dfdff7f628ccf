package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/poller"
	"ideagraph/internal/store"
)

func newPollCommand(app *app) *cobra.Command {
	var (
		source   string
		once     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll --source {mail|teams|github}",
		Short: "Poll a single message source, once or on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, app, source, once, interval)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source to poll: mail, teams or github")
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	cmd.Flags().DurationVar(&interval, "interval", 0, "tick interval (default from config)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runPoll(cmd *cobra.Command, app *app, source string, once bool, interval time.Duration) error {
	ctx := cmd.Context()

	st, err := app.openStore()
	if err != nil {
		return err
	}
	sync, err := app.knowledgeSync(st)
	if err != nil {
		return err
	}

	p, defaultInterval, err := buildPoller(app, st, sync, source)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	if once {
		return pollOnce(ctx, cmd, p)
	}

	orch := poller.NewOrchestrator(logging.NewComponentLogger("scheduler"))
	if err := orch.Add(p, interval); err != nil {
		return configErr(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "polling %s every %s\n", boldTint(p.Source()), interval)
	orch.Start(ctx)
	<-ctx.Done()
	orch.Stop()
	return ctx.Err()
}

func pollOnce(ctx context.Context, cmd *cobra.Command, p poller.Poller) error {
	res, err := p.PollOnce(ctx)
	if err != nil {
		if igerrors.IsDisabled(err) {
			fmt.Fprintln(cmd.OutOrStdout(), dimTint(fmt.Sprintf("%s: %s", p.Source(), err)))
			return nil
		}
		return err
	}
	printTick(cmd, p.Source(), res)
	if res.Failed > 0 {
		return partialErr(fmt.Errorf("%s: %d message(s) failed, see logs", p.Source(), res.Failed))
	}
	return nil
}

func printTick(cmd *cobra.Command, source string, res poller.TickResult) {
	line := fmt.Sprintf("%s: fetched %d, created %d, comments %d, ignored %d, self %d",
		boldTint(source), res.Fetched, res.Created, res.Comments, res.Ignored, res.Self)
	if res.Failed > 0 || res.Poisoned > 0 {
		line += errTint(fmt.Sprintf(", failed %d, poisoned %d", res.Failed, res.Poisoned))
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func buildPoller(app *app, st *store.Store, sync *knowledge.Sync, source string) (poller.Poller, time.Duration, error) {
	resolver := app.resolver(st)

	switch source {
	case poller.SourceMail:
		p := poller.NewMailPoller(app.settings, app.graph(), app.extractor(), app.classifier(sync),
			resolver, st, sync, logging.NewComponentLogger("mail-poller"))
		return p, app.settings.PollInterval, nil
	case poller.SourceTeams:
		p := poller.NewTeamsPoller(app.settings, app.graph(), app.gateway(), app.extractor(),
			app.classifier(sync), resolver, st, sync, logging.NewComponentLogger("teams-poller"))
		return p, app.settings.Teams.PollInterval, nil
	case poller.SourceGitHub:
		p := poller.NewGitHubPoller(app.settings, app.github(), resolver, st, sync,
			logging.NewComponentLogger("github-poller"))
		return p, app.settings.PollInterval, nil
	default:
		return nil, 0, configErr(fmt.Errorf("unknown source %q (want mail, teams or github)", source))
	}
}
