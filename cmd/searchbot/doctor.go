package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"searchbot/internal/config"
	"searchbot/internal/history"
	"searchbot/internal/httpx"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your searchbot installation",
		Long: `Verifies that the configuration, database, language model, SearxNG and
image renderer are reachable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("searchbot doctor v%s\n\n", version)

			var passed, failed, warned int
			pass := func(check, detail string) { printPass(check, detail); passed++ }
			fail := func(check, detail string) { printFail(check, detail); failed++ }
			warn := func(check, detail string) { printWarn(check, detail); warned++ }

			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				cfg = config.Defaults()
				applyDefaultPaths(cfg)
			} else if c, err := config.Load(cfgPath); err != nil {
				fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("invalid config")
			} else {
				pass("Config file", cfgPath)
				cfg = c
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := checkDatabase(cfg.History.DBPath); err != nil {
				fail("Database", err.Error())
			} else {
				pass("Database", cfg.History.DBPath)
			}

			if llm, err := newLLM(cfg); err != nil {
				fail("Language model", err.Error())
			} else if err := llm.Healthy(ctx); err != nil {
				fail("Language model", err.Error())
			} else {
				pass("Language model", llm.Name()+" "+cfg.LLM.ChatModel)
			}

			if err := checkURL(ctx, cfg.Search.SearxngURL); err != nil {
				fail("SearxNG", err.Error())
			} else {
				pass("SearxNG", cfg.Search.SearxngURL)
			}

			switch {
			case !cfg.Image.Enabled:
				warn("Image renderer", "disabled")
			case cfg.Image.Renderer == "http":
				if err := checkURL(ctx, cfg.Image.RenderURL); err != nil {
					warn("Image renderer", err.Error())
				} else {
					pass("Image renderer", cfg.Image.RenderURL)
				}
			default:
				if err := os.MkdirAll(cfg.Image.OutputDir, 0o755); err != nil {
					fail("Image renderer", err.Error())
				} else {
					pass("Image renderer", "browser, output "+cfg.Image.OutputDir)
				}
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// checkDatabase opens (and migrates) the history database.
func checkDatabase(dbPath string) error {
	store, err := history.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.ListChats(ctx, 1); err != nil {
		return fmt.Errorf("cannot query: %w", err)
	}
	return nil
}

// checkURL reports whether anything answers at u. Any HTTP status counts.
func checkURL(ctx context.Context, u string) error {
	if u == "" {
		return fmt.Errorf("not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := httpx.NewClient(5 * time.Second).Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
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
