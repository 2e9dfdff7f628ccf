package main

import (
	"fmt"

	"github.com/spf13/cobra"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
	"ideagraph/internal/poller"
)

func newSyncGitHubCommand(app *app) *cobra.Command {
	var (
		owner   string
		repo    string
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "sync-github",
		Short: "Reconcile item-bound GitHub issues with their linked tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncGitHub(cmd, app, owner, repo, dryRun, verbose)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "override the default repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "override the default repository name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list repo-bound items without touching GitHub")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print every item's issue links")
	return cmd
}

func runSyncGitHub(cmd *cobra.Command, app *app, owner, repo string, dryRun, verbose bool) error {
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

	settings := app.settings
	if owner != "" {
		settings.GitHub.DefaultOwner = owner
	}
	if repo != "" {
		settings.GitHub.DefaultRepo = repo
	}

	if dryRun {
		items, err := st.ListItems(ctx)
		if err != nil {
			return err
		}
		bound := 0
		for _, item := range items {
			sourceRepo := item.SourceRepo
			if sourceRepo == "" && settings.GitHub.DefaultOwner != "" && settings.GitHub.DefaultRepo != "" {
				sourceRepo = settings.GitHub.DefaultOwner + "/" + settings.GitHub.DefaultRepo
			}
			if sourceRepo == "" {
				continue
			}
			bound++
			tasks, err := st.ListTasksByItem(ctx, item.ID)
			if err != nil {
				return err
			}
			linked := 0
			for _, task := range tasks {
				if task.GitHubIssueNumber > 0 {
					linked++
					if verbose {
						fmt.Fprintf(out, "  #%d %s\n", task.GitHubIssueNumber, dimTint(task.Title))
					}
				}
			}
			fmt.Fprintf(out, "%s -> %s (%d linked task(s))\n", boldTint(item.Title), sourceRepo, linked)
		}
		fmt.Fprintf(out, "%s %d repo-bound item(s), nothing changed\n", okTint("dry-run:"), bound)
		return nil
	}

	p := poller.NewGitHubPoller(settings, app.github(), app.resolver(st), st, sync,
		logging.NewComponentLogger("github-poller"))
	res, err := p.PollOnce(ctx)
	if err != nil {
		if igerrors.IsDisabled(err) {
			fmt.Fprintln(out, dimTint(fmt.Sprintf("github: %s", err)))
			return nil
		}
		return err
	}
	printTick(cmd, "github", res)
	if res.Failed > 0 {
		return partialErr(fmt.Errorf("github: %d issue(s) failed, see logs", res.Failed))
	}
	return nil
}
