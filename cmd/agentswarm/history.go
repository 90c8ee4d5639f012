package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/checkpoint/sqlite"
)

// turnLister is implemented by stores that keep a per-turn audit trail.
type turnLister interface {
	Turns(ctx context.Context, conversationID string) ([]sqlite.Turn, error)
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var turns bool

	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Print the stored messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, _, err := root.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			id := args[0]

			if turns {
				tl, ok := app.Store.(turnLister)
				if !ok {
					return errors.New("the configured checkpoint backend keeps no turn history")
				}
				rows, err := tl.Turns(ctx, id)
				if err != nil {
					return err
				}
				for _, t := range rows {
					fmt.Fprintf(out, "%s  agent=%s messages=%d errors=%d\n",
						t.CreatedAt.Format(time.RFC3339), t.ActiveAgent, t.MessageCount, t.ErrorCount)
				}
				return nil
			}

			state, err := app.Runner.History(ctx, id)
			if errors.Is(err, checkpoint.ErrNotFound) {
				return fmt.Errorf("conversation %s not found", id)
			}
			if err != nil {
				return err
			}

			printMessages(out, state.Messages)
			fmt.Fprintf(out, "\nactive agent: %s, error count: %d/%d, plan enabled: %t\n",
				state.ActiveAgent, state.ErrorCount, state.RetryLimit(), state.PlanEnabled)
			return nil
		},
	}

	cmd.Flags().BoolVar(&turns, "turns", false, "print the turn audit trail (sqlite backend)")

	return cmd
}
