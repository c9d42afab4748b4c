package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"lunabot/internal/simulator"

	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	var addr, dbPath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local gateway simulator",
		Long: `Serves the gateway stream and REST endpoints locally. Records posted to
/push are streamed to connected bots; replies are logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			if addr == "" {
				addr = cfg.Simulator.Addr
			}
			if dbPath == "" {
				dbPath = cfg.Simulator.DBPath
			}

			sim, err := simulator.New(simulator.Config{
				Path:   cfg.Gateway.Path,
				DBPath: dbPath,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer sim.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = sim.ListenAndServe(ctx, addr)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: simulator.addr)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: in-memory)")
	return cmd
}
