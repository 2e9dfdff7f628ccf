package main

import (
	"fmt"

	"github.com/spf13/cobra"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
	"ideagraph/internal/logs"
	"ideagraph/internal/milestone"
)

func newAnalyzeLogsCommand(app *app) *cobra.Command {
	var (
		fetchLocal  bool
		fetchSentry bool
		analyze     bool
		createTasks bool
	)

	cmd := &cobra.Command{
		Use:   "analyze-logs",
		Short: "Mine recent log problems for follow-up tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeLogs(cmd, app, fetchLocal, fetchSentry, analyze, createTasks)
		},
	}
	cmd.Flags().BoolVar(&fetchLocal, "fetch-local", false, "read the local component log (default)")
	cmd.Flags().BoolVar(&fetchSentry, "fetch-sentry", false, "read unresolved Sentry issues instead")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "derive task proposals from the problems")
	cmd.Flags().BoolVar(&createTasks, "create-tasks", false, "create the derived tasks under the default item")
	return cmd
}

func runAnalyzeLogs(cmd *cobra.Command, app *app, fetchLocal, fetchSentry, analyze, createTasks bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if fetchLocal && fetchSentry {
		return configErr(fmt.Errorf("--fetch-local and --fetch-sentry are mutually exclusive"))
	}

	var fetcher logs.Fetcher
	if fetchSentry {
		fetcher = logs.NewSentryFetcher(app.settings.Sentry, "", logging.NewComponentLogger("sentry"))
	} else {
		fetcher = &logs.LocalFetcher{}
	}

	text, err := fetcher.Fetch(ctx)
	if err != nil {
		if igerrors.IsDisabled(err) {
			fmt.Fprintln(out, dimTint(err.Error()))
			return nil
		}
		return err
	}
	if text == "" {
		fmt.Fprintln(out, okTint("no problems found"))
		return nil
	}

	if !analyze && !createTasks {
		fmt.Fprintln(out, text)
		return nil
	}

	var analyzer *logs.Analyzer
	if createTasks {
		st, err := app.openStore()
		if err != nil {
			return err
		}
		sync, err := app.knowledgeSync(st)
		if err != nil {
			return err
		}
		analyzer = logs.NewAnalyzer(app.gateway(), st, sync, logging.NewComponentLogger("log-analysis"))
	} else {
		analyzer = logs.NewAnalyzer(app.gateway(), nil, nil, logging.NewComponentLogger("log-analysis"))
	}

	proposed, err := analyzer.Analyze(ctx, text)
	if err != nil {
		return err
	}
	for _, p := range proposed {
		fmt.Fprintf(out, "%s %s\n", boldTint("-"), p.Title)
		if p.Description != "" {
			fmt.Fprintln(out, dimTint("  "+p.Description))
		}
	}
	if !createTasks {
		fmt.Fprintf(out, "%s %d proposal(s)\n", okTint("derived"), len(proposed))
		return nil
	}

	if app.settings.DefaultItemID == "" {
		return configErr(fmt.Errorf("create-tasks needs default_item_id in config"))
	}
	created, err := analyzer.CreateTasks(ctx, app.settings.DefaultItemID, proposed)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d task(s) under item %s\n", okTint("created"), len(created), app.settings.DefaultItemID)
	return nil
}

func newAnalyzeMilestoneCommand(app *app) *cobra.Command {
	var materialize bool

	cmd := &cobra.Command{
		Use:   "analyze-milestone MILESTONE_ID",
		Short: "Summarize a milestone's pending context objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeMilestone(cmd, app, args[0], materialize)
		},
	}
	cmd.Flags().BoolVar(&materialize, "materialize", false, "create tasks from every analyzed context's proposals")
	return cmd
}

func runAnalyzeMilestone(cmd *cobra.Command, app *app, milestoneID string, materialize bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := app.openStore()
	if err != nil {
		return err
	}
	sync, err := app.knowledgeSync(st)
	if err != nil {
		return err
	}
	analyzer := milestone.NewAnalyzer(st, app.gateway(), sync, logging.NewComponentLogger("milestone"))

	analyzed, err := analyzer.AnalyzeAll(ctx, milestoneID)
	if err != nil {
		if analyzed > 0 {
			fmt.Fprintf(out, "analyzed %d context(s) before failing\n", analyzed)
			return partialErr(err)
		}
		return err
	}
	fmt.Fprintf(out, "%s %d context(s)\n", okTint("analyzed"), analyzed)

	if !materialize {
		return nil
	}
	contexts, err := st.ListMilestoneContexts(ctx, milestoneID)
	if err != nil {
		return err
	}
	created := 0
	for _, c := range contexts {
		if !c.Analyzed {
			continue
		}
		tasks, err := analyzer.Materialize(ctx, c.ID)
		if err != nil {
			return partialErr(fmt.Errorf("materialize %s: %w", c.Title, err))
		}
		for _, task := range tasks {
			fmt.Fprintln(out, dimTint("  + "+task.Title))
		}
		created += len(tasks)
	}
	fmt.Fprintf(out, "%s %d task(s)\n", okTint("materialized"), created)
	return nil
}
