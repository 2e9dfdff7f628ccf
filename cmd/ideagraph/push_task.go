package main

import (
	"fmt"

	"github.com/spf13/cobra"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
	"ideagraph/internal/poller"
)

func newPushTaskCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push-task TASK_ID",
		Short: "Open a GitHub issue for a task on its item's source repo",
		Long: "Open a GitHub issue for a task on its item's source repo and link the\n" +
			"task to it. A task in status ready moves to working; the subsequent\n" +
			"issue state is mirrored back by the GitHub poller.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPushTask(cmd, app, args[0])
		},
	}
}

func runPushTask(cmd *cobra.Command, app *app, taskID string) error {
	out := cmd.OutOrStdout()

	st, err := app.openStore()
	if err != nil {
		return err
	}
	sync, err := app.knowledgeSync(st)
	if err != nil {
		return err
	}

	p := poller.NewPusher(app.settings, app.github(), st, sync,
		logging.NewComponentLogger("github-push"))
	issue, err := p.Push(cmd.Context(), taskID)
	if err != nil {
		if igerrors.IsDisabled(err) {
			fmt.Fprintln(out, dimTint(fmt.Sprintf("github: %s", err)))
			return nil
		}
		return err
	}

	task, err := st.GetTask(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s task %s -> issue #%d (%s)\n", okTint("pushed:"), taskID, issue.Number, issue.HTMLURL)
	fmt.Fprintf(out, "status: %s\n", task.Status)
	return nil
}
