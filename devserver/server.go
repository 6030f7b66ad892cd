// Package devserver implements the Clonr API on top of local storage so the
// client can be developed and tested without the hosted service.
//
// The session cookie value is taken as the user id. Every user gets a
// fixed number of free clone replies; once they are used up, sending and
// generating answer 402 Payment Required.
package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/richinex/clonr/config"
	"github.com/richinex/clonr/metrics"
	"github.com/richinex/clonr/storage"
)

const (
	defaultCookieName = "clonr_session"
	defaultLimit      = 10
	maxLimit          = config.MaxPageLimit
	historyLimit      = 20
)

// Option configures the server.
type Option func(*server)

// WithCookieName sets the session cookie that identifies users.
func WithCookieName(name string) Option {
	return func(s *server) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithFreeMessageLimit sets how many clone replies each user gets.
// 0 means unlimited.
func WithFreeMessageLimit(n int) Option {
	return func(s *server) { s.freeLimit = n }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records handled requests and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *server) {
		s.metrics = m
		s.gatherer = g
	}
}

type server struct {
	store      storage.Store
	replier    Replier
	cookieName string
	freeLimit  int
	logger     *zap.Logger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
}

// New returns the API handler.
func New(store storage.Store, replier Replier, opts ...Option) http.Handler {
	s := &server{
		store:      store,
		replier:    replier,
		cookieName: defaultCookieName,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.logRequests)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/tags", s.listTags)
		r.Get("/clones", s.listClones)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Post("/", s.createConversation)
			r.Get("/sidebar", s.sidebar)
			r.Get("/{conversationID}/messages", s.listMessages)
			r.Post("/{conversationID}/messages", s.createMessage)
			r.Post("/{conversationID}/generate", s.generate)
		})
	})

	return r
}

// logRequests logs every request and records it in metrics under its
// route pattern.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		pattern := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method+" "+pattern, status, elapsed)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type userKey struct{}

// authenticate resolves the session cookie into a user id.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if err := s.store.EnsureUser(r.Context(), cookie.Value, ""); err != nil {
			s.internalError(w, "ensure user", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, cookie.Value)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}
