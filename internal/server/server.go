// Package server exposes the gatekeeper to the browser extension and popup
// over a loopback HTTP API, and renders the interstitial page.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

// RuleSource exposes the installed rule set for the extension to mirror.
type RuleSource interface {
	Snapshot() ([]domain.RedirectRule, uint64)
	Match(rawURL string) (domain.RedirectRule, bool)
}

// TabCommandSource hands queued tab commands to the extension.
type TabCommandSource interface {
	Drain() []domain.TabCommand
	Wait(ctx context.Context) []domain.TabCommand
}

// Config holds server settings.
type Config struct {
	Listen          string
	AnalyzingReload time.Duration // Interstitial self-refresh while analyzing
	LongPollTimeout time.Duration // Max wait of GET /api/tabs/commands?wait=1
}

// DefaultConfig returns default server settings.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8787",
		AnalyzingReload: 5 * time.Second,
		LongPollTimeout: 25 * time.Second,
	}
}

// Server is the HTTP front of the gatekeeper.
type Server struct {
	config        Config
	sessions      *usecase.SessionManager
	dispatcher    *usecase.NavigationDispatcher
	questionnaire *usecase.Questionnaire
	rules         RuleSource
	tabs          TabCommandSource
	catalog       domain.DomainCatalog
	store         domain.StateStore
	logger        *zap.Logger
	httpServer    *http.Server
}

// New creates a server. Call ListenAndServe to start it.
func New(
	config Config,
	sessions *usecase.SessionManager,
	dispatcher *usecase.NavigationDispatcher,
	questionnaire *usecase.Questionnaire,
	rules RuleSource,
	tabs TabCommandSource,
	catalog domain.DomainCatalog,
	store domain.StateStore,
	logger *zap.Logger,
) *Server {
	defaults := DefaultConfig()
	if config.AnalyzingReload <= 0 {
		config.AnalyzingReload = defaults.AnalyzingReload
	}
	if config.LongPollTimeout <= 0 {
		config.LongPollTimeout = defaults.LongPollTimeout
	}
	s := &Server{
		config:        config,
		sessions:      sessions,
		dispatcher:    dispatcher,
		questionnaire: questionnaire,
		rules:         rules,
		tabs:          tabs,
		catalog:       catalog,
		store:         store,
		logger:        logger,
	}
	s.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	mux.HandleFunc("GET /api/rules", s.handleRules)
	mux.HandleFunc("GET /api/rules/match", s.handleRuleMatch)
	mux.HandleFunc("GET /api/tabs/commands", s.handleTabCommands)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/domain", s.handleSetDomain)
	mux.HandleFunc("POST /api/session/complete", s.handleComplete)
	mux.HandleFunc("POST /api/session/end", s.handleEnd)
	mux.HandleFunc("GET /api/block", s.handleCheckBlock)
	mux.HandleFunc("GET /api/domains", s.handleDomains)

	mux.HandleFunc("GET /api/questions", s.handleGetQuestions)
	mux.HandleFunc("POST /api/questions/next", s.handleNextQuestion)
	mux.HandleFunc("POST /api/questions/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/questions/contextualize", s.handleContextualize)
	mux.HandleFunc("POST /api/questions/reset", s.handleResetQuestions)

	mux.HandleFunc("GET /interstitial", s.handleInterstitial)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// ListenAndServe starts serving on the configured address.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", zap.String("addr", s.config.Listen))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
