// Package main provides the clonr CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/cli"
	"github.com/richinex/clonr/config"
	"github.com/richinex/clonr/session"
)

var (
	// Global flags
	verbose bool
	pages   int

	settings config.Settings
	logger   *zap.Logger
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "clonr",
		Short: "Browse and chat with Clonr clones from the terminal",
		Long: `A terminal client for the Clonr companion-chat API.

Lists are paginated the way the web client pages them; chat messages are
shown before the server confirms them. Run "clonr serve" for a local
development backend backed by SQLite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = config.New()
			if err != nil {
				return err
			}
			logger, err = cli.NewLogger(settings.Log.Level, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	rootCmd.PersistentFlags().IntVar(&pages, "pages", 1, "Number of pages to load for list commands")

	rootCmd.AddCommand(clonesCmd())
	rootCmd.AddCommand(sidebarCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func openSession() (*session.Session, error) {
	return cli.OpenSession(settings, logger)
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Pages = max(pages, 1)
	opts.Verbose = verbose
	return opts
}

func cloneQueryFlags(cmd *cobra.Command, q *api.CloneQuery, sort *string) {
	cmd.Flags().StringArrayVar(&q.Tags, "tag", nil, "Tag id the clones must carry (repeatable)")
	cmd.Flags().StringVar(&q.Name, "name", "", "Clone name substring")
	cmd.Flags().StringVar(sort, "sort", "top", "Sort order (top, trending, newest, oldest, alphabetical, similarity)")
	cmd.Flags().StringVar(&q.Similar, "similar", "", "Name to rank by similarity")
}

func clonesCmd() *cobra.Command {
	var q api.CloneQuery
	var sort string

	cmd := &cobra.Command{
		Use:   "clones",
		Short: "Search clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := api.ParseSortOrder(sort)
			if err != nil {
				return err
			}
			q.Sort = order
			s, err := openSession()
			if err != nil {
				return err
			}
			return cli.ListClones(cmd.Context(), cmd.OutOrStdout(), s, q, options())
		},
	}
	cloneQueryFlags(cmd, &q, &sort)
	return cmd
}

func sidebarCmd() *cobra.Command {
	var q api.SidebarQuery

	cmd := &cobra.Command{
		Use:   "sidebar",
		Short: "List recent conversations grouped by clone",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			return cli.ListSidebar(cmd.Context(), cmd.OutOrStdout(), s, q, options())
		},
	}
	cmd.Flags().StringVar(&q.Name, "name", "", "Clone name substring")
	cmd.Flags().IntVar(&q.ConvoLimit, "convo-limit", 0, "Conversations per clone (0 uses CLONR_SIDEBAR_CONVO_LIMIT)")
	return cmd
}

func conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations [clone-id]",
		Short: "List your conversations with a clone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			return cli.ListConversations(cmd.Context(), cmd.OutOrStdout(), s, args[0], options())
		},
	}
}

func messagesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "messages [conversation-id]",
		Short: "List messages of a conversation, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			q := api.MainThread(args[0])
			if all {
				q = api.MessageQuery{ConversationID: args[0]}
			}
			return cli.ListMessages(cmd.Context(), cmd.OutOrStdout(), s, q, options())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive and side-branch messages")
	return cmd
}

func chatCmd() *cobra.Command {
	var cloneID string

	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Chat in a conversation, or start one with --clone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			var convID string
			if len(args) == 1 {
				convID = args[0]
			}
			return cli.Chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s, convID, cloneID)
		},
	}
	cmd.Flags().StringVar(&cloneID, "clone", "", "Start a new conversation with this clone")
	return cmd
}

func browseCmd() *cobra.Command {
	var q api.CloneQuery
	var sort string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse clones interactively and chat with the one you pick",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := api.ParseSortOrder(sort)
			if err != nil {
				return err
			}
			q.Sort = order
			s, err := openSession()
			if err != nil {
				return err
			}
			return cli.Browse(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s, q)
		},
	}
	cloneQueryFlags(cmd, &q, &sort)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local development backend",
		Long: `Serve the Clonr API from a local SQLite database, seeded with demo clones.

Clone replies come from the provider named by CLONR_LLM_PROVIDER
(openai, anthropic, deepseek, gemini); without one they are echoed.
Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				settings.Dev.Addr = addr
			}
			if dbPath != "" {
				settings.Dev.DBPath = dbPath
			}
			return cli.Serve(cmd.Context(), settings, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default CLONR_DEV_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default CLONR_DEV_DB)")
	return cmd
}
