// Command execution for CLI commands.
//
// Information Hiding:
// - Session and dev backend setup hidden
// - Page loading loops hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/chat"
	"github.com/richinex/clonr/config"
	"github.com/richinex/clonr/devserver"
	"github.com/richinex/clonr/llm"
	"github.com/richinex/clonr/metrics"
	"github.com/richinex/clonr/model"
	"github.com/richinex/clonr/paginate"
	"github.com/richinex/clonr/session"
	"github.com/richinex/clonr/storage"
	"github.com/richinex/clonr/tui"
)

// Options holds CLI execution options.
type Options struct {
	Pages   int
	Verbose bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{Pages: 1}
}

// OpenSession builds a session from settings. Local messages are
// attributed to the session token, which the dev backend uses as user id.
func OpenSession(settings config.Settings, logger *zap.Logger) (*session.Session, error) {
	return session.New(settings,
		session.WithLogger(logger),
		session.WithUser(settings.API.SessionToken, "You"))
}

// printPages loads up to pages pages of p and writes one line per item.
func printPages[T any](ctx context.Context, w io.Writer, p *paginate.Pager[T], pages int, line func(T) string) error {
	if err := p.Load(ctx); err != nil {
		return err
	}
	for i := 1; i < pages && !p.IsLastPage(); i++ {
		if err := p.Advance(ctx); err != nil {
			return err
		}
	}

	items := p.Items()
	for _, item := range items {
		fmt.Fprintln(w, line(item))
	}
	switch {
	case len(items) == 0:
		fmt.Fprintln(w, "(none)")
	case !p.IsLastPage():
		fmt.Fprintf(w, "(%d shown, more available)\n", len(items))
	}
	return nil
}

// ListClones prints clone search results.
func ListClones(ctx context.Context, w io.Writer, s *session.Session, q api.CloneQuery, opts Options) error {
	feed := s.Clones(q)
	defer feed.Close()
	return printPages(ctx, w, feed.Pager, opts.Pages, func(c model.Clone) string {
		line := fmt.Sprintf("%s  %s", c.ID, c.Name)
		if c.ShortDescription != "" {
			line += "  " + c.ShortDescription
		}
		if len(c.Tags) > 0 {
			names := make([]string, len(c.Tags))
			for i, t := range c.Tags {
				names[i] = t.Name
			}
			line += "  [" + strings.Join(names, ", ") + "]"
		}
		return line
	})
}

// ListSidebar prints the sidebar conversation summaries.
func ListSidebar(ctx context.Context, w io.Writer, s *session.Session, q api.SidebarQuery, opts Options) error {
	feed := s.Sidebar(q)
	defer feed.Close()
	return printPages(ctx, w, feed.Pager, opts.Pages, func(c model.SidebarConversation) string {
		return fmt.Sprintf("%s  %s  %s", c.ID, c.CloneName, truncateString(c.LastMessage, 60))
	})
}

// ListConversations prints the user's conversations with one clone.
func ListConversations(ctx context.Context, w io.Writer, s *session.Session, cloneID string, opts Options) error {
	feed := s.Conversations(api.ConversationQuery{CloneID: cloneID})
	defer feed.Close()
	return printPages(ctx, w, feed.Pager, opts.Pages, func(c model.Conversation) string {
		return fmt.Sprintf("%s  %s  %d messages  %s", c.ID, c.CloneName, c.NumMessages,
			c.UpdatedAt.Local().Format(time.DateTime))
	})
}

// ListMessages prints messages of a conversation, newest first.
func ListMessages(ctx context.Context, w io.Writer, s *session.Session, q api.MessageQuery, opts Options) error {
	feed := s.Messages(q)
	defer feed.Close()
	return printPages(ctx, w, feed.Pager, opts.Pages, formatMessage)
}

func formatMessage(m model.Message) string {
	line := fmt.Sprintf("%s: %s", m.SenderName, m.Content)
	switch m.LocalState {
	case model.Pending:
		line += "  (sending)"
	case model.Failed:
		line += "  (not sent, /retry to resend)"
	}
	return line
}

// Chat runs a line-based chat in conversationID. An empty conversationID
// with a cloneID starts a new conversation first.
func Chat(ctx context.Context, in io.Reader, w io.Writer, s *session.Session, conversationID, cloneID string) error {
	if conversationID == "" {
		if cloneID == "" {
			return fmt.Errorf("a conversation id or a clone id is required")
		}
		conv, err := s.Client.CreateConversation(ctx, cloneID, "")
		if err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
		conversationID = conv.ID
		fmt.Fprintf(w, "Started conversation %s with %s\n", conv.ID, conv.CloneName)
	}

	feed := s.Messages(api.MainThread(conversationID))
	defer feed.Close()
	if err := feed.Load(ctx); err != nil {
		return err
	}
	if cloneID == "" {
		for _, m := range feed.Items() {
			if m.CloneID != "" {
				cloneID = m.CloneID
				break
			}
		}
	}
	sender := s.Sender(feed, cloneID)

	for _, m := range slices.Backward(feed.Items()) {
		fmt.Fprintln(w, formatMessage(m))
	}
	fmt.Fprintln(w, "\nType a message. Commands: /retry, /reply, /regenerate, /more, exit.")
	fmt.Fprintln(w)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var reply model.Message
		var err error
		switch input {
		case "/more":
			before := len(feed.Items())
			if err := feed.Advance(ctx); err != nil {
				fmt.Fprintf(w, "\nError: %v\n\n", err)
				continue
			}
			older := feed.Items()[before:]
			for _, m := range slices.Backward(older) {
				fmt.Fprintln(w, formatMessage(m))
			}
			if len(older) == 0 {
				fmt.Fprintln(w, "(no older messages)")
			}
			continue
		case "/retry":
			failed, ok := lastFailed(feed.Items())
			if !ok {
				fmt.Fprintln(w, "Nothing to retry.")
				continue
			}
			reply, err = sender.Retry(ctx, failed.ID)
		case "/reply":
			reply, err = sender.Reply(ctx)
		case "/regenerate":
			reply, err = sender.Regenerate(ctx)
		default:
			reply, err = sender.Send(ctx, input)
		}

		switch {
		case err == nil:
			fmt.Fprintf(w, "\n%s\n\n", formatMessage(reply))
		case errors.Is(err, api.ErrQuotaExceeded):
			fmt.Fprintf(w, "\nYou have used all of your free messages. Upgrade to keep chatting.\n\n")
		case errors.Is(err, chat.ErrReplyFailed):
			fmt.Fprintf(w, "\nThe clone could not answer: %v\nType /reply to try again.\n\n", err)
		case errors.Is(err, chat.ErrNoReply):
			fmt.Fprintln(w, "The latest message has no reply to regenerate. Type /reply to ask for one.")
		default:
			fmt.Fprintf(w, "\nError: %v\n\n", err)
		}
	}

	return scanner.Err()
}

func lastFailed(items []model.Message) (model.Message, bool) {
	for _, m := range items {
		if m.LocalState == model.Failed {
			return m, true
		}
	}
	return model.Message{}, false
}

// Browse opens the clone browser. Choosing a clone starts a chat with it.
func Browse(ctx context.Context, in io.Reader, w io.Writer, s *session.Session, q api.CloneQuery) error {
	feed := s.Clones(q)
	defer feed.Close()

	c, ok, err := tui.Run(feed, s.Feeds.SearchDebounce)
	if err != nil || !ok {
		return err
	}
	return Chat(ctx, in, w, s, "", c.ID)
}

// Serve runs the development backend until ctx is cancelled.
func Serve(ctx context.Context, settings config.Settings, logger *zap.Logger) error {
	store, err := storage.OpenSqlite(settings.Dev.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	n, err := storage.Seed(ctx, store)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("seeded demo clones", zap.Int("count", n))
	}

	provider, err := llm.FromConfig(settings.LLM)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	handler := devserver.New(store, devserver.NewLLMReplier(provider),
		devserver.WithCookieName(settings.API.CookieName),
		devserver.WithFreeMessageLimit(settings.Dev.FreeMessageLimit),
		devserver.WithLogger(logger),
		devserver.WithMetrics(metrics.New(reg), reg),
	)

	srv := &http.Server{
		Addr:              settings.Dev.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("dev backend listening",
		zap.String("addr", settings.Dev.Addr),
		zap.String("db", settings.Dev.DBPath),
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()))

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	<-errCh
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
