package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newAskCommand(app *app) *cobra.Command {
	var (
		itemID string
		askBy  string
		save   bool
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Answer a question over the knowledge index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, app, args[0], itemID, askBy, save, plain)
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "scope retrieval to one item")
	cmd.Flags().StringVar(&askBy, "as", "cli", "asker recorded on the exchange")
	cmd.Flags().BoolVar(&save, "save", false, "index the exchange back as knowledge")
	cmd.Flags().BoolVar(&plain, "plain", false, "print raw markdown, no terminal styling")
	return cmd
}

func runAsk(cmd *cobra.Command, app *app, question, itemID, askedBy string, save, plain bool) error {
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

	qa, err := app.pipeline(sync).Answer(ctx, question, itemID, askedBy)
	if err != nil {
		return err
	}
	if err := st.CreateQuestionAnswer(ctx, qa); err != nil {
		return err
	}
	if save {
		if err := sync.SyncQA(ctx, qa); err != nil {
			return err
		}
	}

	rendered := qa.Answer
	if !plain {
		if styled, rerr := glamour.Render(qa.Answer, "auto"); rerr == nil {
			rendered = styled
		}
	}
	fmt.Fprintln(out, strings.TrimRight(rendered, "\n"))

	if len(qa.Sources) > 0 {
		fmt.Fprintln(out)
		for i, src := range qa.Sources {
			fmt.Fprintln(out, dimTint(fmt.Sprintf("[#A%d] %s (%s, %.2f)", i+1, src.Title, src.Type, src.Score)))
		}
	}
	if save {
		fmt.Fprintln(out, okTint("saved as knowledge"))
	}
	return nil
}
