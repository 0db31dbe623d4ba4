package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"searchbot/internal/domain"
	"searchbot/internal/history"
	"searchbot/internal/intent"
	"searchbot/internal/mcpserver"
	"searchbot/internal/modes"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text]",
		Short: "Show whether text would be treated as an image request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := intent.Classify(strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"isImageRequest":   d.IsImageRequest,
				"extractedContent": d.ExtractedContent,
			})
		},
	}
}

func modesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List focus modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defs, err := modes.Load(cfg.Modes.Dir, logger)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tWEB\tENGINES")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", d.Key, d.Name, d.SearchWeb, strings.Join(d.Engines, ","))
			}
			return tw.Flush()
		},
	}
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.DBPath, logger)
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved chats",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			chats, err := store.ListChats(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tTITLE")
			for _, c := range chats {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.FocusMode, truncate(c.Title, 60))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of chats to show")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [chat-id]",
		Short: "Print a chat and its messages as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			chat, err := store.GetChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs, err := store.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"chat": chat, "messages": msgs})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [chat-id]",
		Short: "Delete a chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeleteChat(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no chat with id %s", args[0])
				}
				return err
			}
			logger.Info("chat deleted", "chat_id", args[0])
			return nil
		},
	})

	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server on stdio (text_to_image, classify_image_intent, chat history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol; keep logs on stderr.
			store, err := history.Open(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			s := mcpserver.New(mcpserver.Deps{
				Renderer:      newRenderer(cfg),
				Defaults:      domain.RenderOptions{Theme: cfg.Image.Theme, Width: cfg.Image.Width},
				PublicBaseURL: imageBaseURL(cfg),
				Chats:         store,
				Version:       version,
				Logger:        logger,
			})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("MCP server started (stdio transport)")
			if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp stdio: %w", err)
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
