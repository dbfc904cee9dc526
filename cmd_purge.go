package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the long-term memory and run audit of a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		scope = strings.TrimSpace(scope)
		if scope == "" {
			return fmt.Errorf("--scope is required")
		}

		a, err := buildApp(cmd.Context(), envCfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.rdb == nil {
			return fmt.Errorf("redis is unavailable; nothing to purge")
		}

		if err := a.memory.Purge(cmd.Context(), scope); err != nil {
			return fmt.Errorf("purge memory: %w", err)
		}
		if a.audit != nil {
			if err := a.audit.Clear(cmd.Context(), scope); err != nil {
				logx.Warn().Err(err).Str("scope_id", scope).Msg("run audit clear failed")
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged memory for scope %q\n", scope)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().String("scope", "", "Scope id to purge")
}
