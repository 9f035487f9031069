package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/zap-gateway/internal/service/access"
	"github.com/zhouzirui/zap-gateway/internal/service/ai"
	"github.com/zhouzirui/zap-gateway/internal/service/knowledge"
)

var errBackendUnreachable = fmt.Errorf("backend check failed: %w", ai.ErrBackendUnavailable)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and probe the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		kb, err := knowledge.Load(cfg.Knowledge.Dir, cfg.Knowledge.Patterns, logger)
		if err != nil {
			return fmt.Errorf("loading knowledge: %w", err)
		}

		backend, err := ai.NewService(cmd.Context(), cfg.Backend, kb, logger)
		if err != nil {
			return fmt.Errorf("creating backend client: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "allowed senders: %d\n", access.NewAllowList(cfg.Access.AllowedSenders).Len())
		fmt.Fprintf(out, "knowledge: %d bytes from %s\n", len(kb), cfg.Knowledge.Dir)

		if !backend.Probe(cmd.Context()) {
			fmt.Fprintf(out, "backend: unreachable at %s\n", cfg.Backend.BaseURL)
			return errBackendUnreachable
		}
		fmt.Fprintf(out, "backend: ok at %s (model %s)\n", cfg.Backend.BaseURL, cfg.Backend.Model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
