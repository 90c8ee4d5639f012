package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentswarm/runner"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		plan    bool
		verbose bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "run <conversation> <message>",
		Short:   "Run a single turn and print the reply",
		Example: `agentswarm run demo "Summarise sheet Q1"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, _, err := root.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Runner.Run(ctx, args[0], strings.Join(args[1:], " "), func(o *runner.TurnOptions) {
				if cmd.Flags().Changed("plan") {
					o.PlanEnabled = &plan
				}
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case verbose:
				printMessages(out, res.Messages)
			default:
				fmt.Fprintln(out, res.Reply())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plan, "plan", false, "enable research and planning")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print tool calls and handoffs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the turn result as JSON")

	return cmd
}
