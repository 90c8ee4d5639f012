package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentswarm/runner"
)

func newChatCommand(root *rootOptions) *cobra.Command {
	var (
		conversation string
		plan         bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `agentswarm chat --conversation demo
agentswarm chat --conversation demo --plan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := root.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			s := &chatSession{
				runner:       app.Runner,
				conversation: conversation,
				out:          cmd.OutOrStdout(),
			}
			if cmd.Flags().Changed("plan") {
				s.plan = &plan
			}

			fmt.Fprintf(s.out, "Conversation %s (Ctrl+D to exit, /plan on|off to toggle planning)\n\n", conversation)
			return s.loop(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&conversation, "conversation", "default", "conversation id")
	cmd.Flags().BoolVar(&plan, "plan", false, "enable research and planning")

	return cmd
}

type chatSession struct {
	runner       *runner.Runner
	conversation string
	plan         *bool
	out          io.Writer
}

func (s *chatSession) loop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".agentswarm_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error initializing readline: %v\nFalling back to simple input mode...\n", err)
		return s.simpleLoop(ctx, os.Stdin)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "Goodbye!")
				return nil
			}
			return err
		}
		if done := s.handle(ctx, line); done {
			return nil
		}
	}
}

func (s *chatSession) simpleLoop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return scanner.Err()
		}
		if done := s.handle(ctx, scanner.Text()); done {
			return nil
		}
	}
}

// handle processes one input line and reports whether the session ends.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch {
	case input == "":
		return false
	case input == "exit" || input == "quit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	case strings.HasPrefix(input, "/plan"):
		arg := strings.TrimSpace(strings.TrimPrefix(input, "/plan"))
		switch arg {
		case "on", "off":
			enabled := arg == "on"
			s.plan = &enabled
			fmt.Fprintf(s.out, "Planning %s.\n", arg)
		default:
			fmt.Fprintln(s.out, "Usage: /plan on|off")
		}
		return false
	}

	// Ctrl+C while a turn runs cancels the turn, not the session.
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, err := s.runner.Run(turnCtx, s.conversation, input, func(o *runner.TurnOptions) {
		o.PlanEnabled = s.plan
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return false
	}

	fmt.Fprintln(s.out)
	printMessages(s.out, res.Messages)
	fmt.Fprintln(s.out)
	return false
}
