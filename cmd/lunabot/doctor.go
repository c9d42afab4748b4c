package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"lunabot/internal/api"
	"lunabot/internal/config"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks against the config and gateway",
		Long: `Verifies that the configuration is valid, the gateway stream accepts
connections and the query endpoint answers. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("lunabot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
				cfg = config.Defaults()
				if err := config.ApplyEnv(cfg); err != nil {
					printFail("Environment", err.Error())
					failed++
				}
			} else {
				printPass("Config file", cfgPath)
				passed++
				loaded, err := config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
					fmt.Printf("\n%d passed, %d failed\n", passed, failed)
					return fmt.Errorf("%d check(s) failed", failed)
				}
				printPass("Config validation", "valid")
				passed++
				cfg = loaded
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := checkStream(ctx, cfg.Gateway); err != nil {
				printFail("Gateway stream", err.Error())
				failed++
			} else {
				printPass("Gateway stream", "ws://"+cfg.Gateway.Host+cfg.Gateway.Path)
				passed++
			}

			if err := checkQuery(ctx, cfg); err != nil {
				printFail("Gateway query", err.Error())
				failed++
			} else {
				printPass("Gateway query", "http://"+cfg.Gateway.Host+"/query")
				passed++
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			if cfg.Log.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.Log.File)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running lunabot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nlunabot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! lunabot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkStream(ctx context.Context, cfg config.GatewayConfig) error {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, "ws://"+cfg.Host+cfg.Path, nil)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkQuery(ctx context.Context, cfg *config.Config) error {
	client := api.New(api.Config{
		BaseURL: "http://" + cfg.Gateway.Host,
		Timeout: cfg.API.Timeout(),
		Logger:  logger,
	})
	defer client.Close()

	var rows []struct {
		OK int `json:"ok"`
	}
	if err := client.QueryRows(ctx, &rows, "SELECT 1 AS ok"); err != nil {
		return err
	}
	if len(rows) != 1 || rows[0].OK != 1 {
		return fmt.Errorf("unexpected query result %+v", rows)
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
