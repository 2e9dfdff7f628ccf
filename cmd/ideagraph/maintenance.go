package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ideagraph/internal/logging"
	"ideagraph/internal/maintain"
)

func newCleanupTasksCommand(app *app) *cobra.Command {
	var (
		dryRun      bool
		noOwnerOnly bool
		noItemOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup-tasks",
		Short: "Delete tasks that lost their owner or their item",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := maintainService(app)
			if err != nil {
				return err
			}
			if noOwnerOnly && noItemOnly {
				return configErr(fmt.Errorf("--no-owner-only and --no-item-only are mutually exclusive"))
			}
			tasks, err := svc.CleanupTasks(cmd.Context(), maintain.CleanupTasksOptions{
				DryRun:      dryRun,
				NoOwnerOnly: noOwnerOnly,
				NoItemOnly:  noItemOnly,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, task := range tasks {
				fmt.Fprintln(out, dimTint("  "+task.Title))
			}
			if dryRun {
				fmt.Fprintf(out, "%s %d orphaned task(s)\n", okTint("dry-run:"), len(tasks))
			} else {
				fmt.Fprintf(out, "%s %d task(s)\n", okTint("deleted"), len(tasks))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without deleting")
	cmd.Flags().BoolVar(&noOwnerOnly, "no-owner-only", false, "only tasks without an owner")
	cmd.Flags().BoolVar(&noItemOnly, "no-item-only", false, "only tasks without an item")
	return cmd
}

func newCleanupTagsCommand(app *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup-tags",
		Short: "Remove tags no item or task references",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := maintainService(app)
			if err != nil {
				return err
			}
			tags, err := svc.CleanupTags(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tag := range tags {
				fmt.Fprintln(out, dimTint("  "+tag.Name))
			}
			if dryRun {
				fmt.Fprintf(out, "%s %d unused tag(s)\n", okTint("dry-run:"), len(tags))
			} else {
				fmt.Fprintf(out, "%s %d tag(s)\n", okTint("removed"), len(tags))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without deleting")
	return cmd
}

func newSyncTagsCommand(app *app) *cobra.Command {
	var tagID string

	cmd := &cobra.Command{
		Use:   "sync-tags",
		Short: "Re-index every tagged item and task",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := maintainService(app)
			if err != nil {
				return err
			}
			synced, err := svc.SyncTags(cmd.Context(), tagID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d entit%s\n", okTint("re-indexed"), synced, plural(synced, "y", "ies"))
			return nil
		},
	}
	cmd.Flags().StringVar(&tagID, "tag-id", "", "limit the pass to one tag")
	return cmd
}

func maintainService(app *app) (*maintain.Service, error) {
	st, err := app.openStore()
	if err != nil {
		return nil, err
	}
	sync, err := app.knowledgeSync(st)
	if err != nil {
		return nil, err
	}
	return maintain.New(st, sync, logging.NewComponentLogger("maintain")), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
