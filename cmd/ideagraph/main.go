// The ideagraph binary hosts the HTTP API, the source pollers, and the
// operational commands (cleanup, tag sync, log analysis, ad-hoc questions).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit codes: 0 success, 1 configuration error, 2 partial failure,
// 130 interrupted.
const (
	exitOK        = 0
	exitConfig    = 1
	exitPartial   = 2
	exitCancelled = 130
)

// exitError carries an explicit process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func configErr(err error) error  { return &exitError{code: exitConfig, err: err} }
func partialErr(err error) error { return &exitError{code: exitPartial, err: err} }

var (
	errTint  = color.New(color.FgRed).SprintFunc()
	okTint   = color.New(color.FgGreen).SprintFunc()
	dimTint  = color.New(color.FgHiBlack).SprintFunc()
	boldTint = color.New(color.Bold).SprintFunc()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	err := root.ExecuteContext(ctx)
	if err == nil {
		os.Exit(exitOK)
	}

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, dimTint("interrupted"))
		os.Exit(exitCancelled)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, errTint(ee.err.Error()))
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, errTint(err.Error()))
	os.Exit(exitConfig)
}

func newRootCommand() *cobra.Command {
	app := &app{}

	root := &cobra.Command{
		Use:           "ideagraph",
		Short:         "Knowledge and task platform: pollers, RAG answers, knowledge sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "path to the YAML config file")

	root.AddCommand(
		newServeCommand(app),
		newPollCommand(app),
		newSyncGitHubCommand(app),
		newPushTaskCommand(app),
		newAskCommand(app),
		newCleanupTasksCommand(app),
		newCleanupTagsCommand(app),
		newSyncTagsCommand(app),
		newAnalyzeLogsCommand(app),
		newAnalyzeMilestoneCommand(app),
	)
	return root
}
