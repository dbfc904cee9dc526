package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
)

var askOpts struct {
	scope       string
	memoryMode  string
	storeMemory bool
	stream      bool
	agent       string
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run one refine loop turn and print the final answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := buildApp(ctx, envCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		in := model.RunInput{
			UserMessage:      strings.Join(args, " "),
			ScopeID:          askOpts.scope,
			AgentDescription: askOpts.agent,
			StoreMemory:      askOpts.storeMemory,
			MemoryMode:       askOpts.memoryMode,
		}
		if askOpts.stream {
			return streamAnswer(ctx, cmd, a, in)
		}

		res, err := a.runner.Run(ctx, in)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.FinalResponse)
		fmt.Fprintf(out, "\n[iterations: %d, verdict: %s]\n", res.TotalIterations, res.LastVerdict.Verdict)
		return nil
	},
}

func streamAnswer(ctx context.Context, cmd *cobra.Command, a *app, in model.RunInput) error {
	events, err := a.runner.Stream(ctx, in)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for ev := range events {
		switch ev.Type {
		case model.EventResponder:
			fmt.Fprintf(out, "--- responder (attempt %d) ---\n%s\n", ev.Iteration, ev.Content)
		case model.EventCritic:
			if ev.Verdict != nil {
				fmt.Fprintf(out, "--- critic (attempt %d): %s ---\n%s\n", ev.Iteration, ev.Verdict.Verdict, ev.Verdict.Feedback)
			}
		case model.EventComplete:
			fmt.Fprintf(out, "=== final after %d iteration(s) ===\n%s\n", ev.TotalIterations, ev.FinalResponse)
		}
	}
	return ctx.Err()
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askOpts.scope, "scope", "s", "", "Memory scope id (user, agent or session)")
	askCmd.Flags().StringVar(&askOpts.memoryMode, "memory-mode", model.MemoryModeLong, "Memory mode: short or long")
	askCmd.Flags().BoolVar(&askOpts.storeMemory, "store-memory", true, "Persist the exchange to long-term memory")
	askCmd.Flags().BoolVar(&askOpts.stream, "stream", false, "Print each Responder and Critic step as it happens")
	askCmd.Flags().StringVar(&askOpts.agent, "agent", "", "Optional agent description")
}
