//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/web_mon/test/fixtures"
)

const interstitialBase = "http://127.0.0.1:8787/interstitial"

// stack is one gatekeeper process wired the way the serve command does it,
// with the remote services replaced by fakes.
type stack struct {
	store    *infra.EncryptedStateStore
	table    *infra.RuleTable
	tabs     *infra.TabCommandQueue
	sessions *usecase.SessionManager
	api      *httptest.Server
	cancel   context.CancelFunc
	done     chan struct{}
}

func newStack(dataDir string, classifier *fixtures.FakeClassifier, questions *fixtures.FakeQuestionService, resume bool) (*stack, error) {
	logger := zap.NewNop()

	store, err := infra.OpenStateStore(dataDir)
	if err != nil {
		return nil, err
	}

	registry := policy.NewRegistry()
	registry.Register(policy.NewConfiguredPolicy("research", "Research", "Reading and writing papers", 30*time.Minute))
	catalog := policy.NewCatalog(registry)

	table := infra.NewRuleTable()
	rules := usecase.NewRuleSynchronizer(usecase.SynchronizerConfig{
		InterstitialURL: interstitialBase,
		Exclusions:      []string{"127.0.0.1:8787"},
	}, table, store, logger)
	cache := usecase.NewClassificationCache()
	sessions := usecase.NewSessionManager(cache, rules, store, catalog, nil, logger)

	tabs := infra.NewTabCommandQueue(0)
	dispatcher := usecase.NewNavigationDispatcher(usecase.DispatcherConfig{
		InterstitialURL: interstitialBase,
		SelfOrigins:     []string{classifier.URL(), questions.URL()},
		ClassifyTimeout: 2 * time.Second,
	}, sessions, cache, infra.NewHTTPClassifier(classifier.URL(), nil), tabs, logger)
	questionnaire := usecase.NewQuestionnaire(usecase.QuestionnaireConfig{
		MaxTries:       2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, infra.NewHTTPQuestionService(questions.URL(), nil), sessions, logger)

	if err := sessions.Boot(context.Background(), resume); err != nil {
		store.Close()
		return nil, err
	}

	srv := server.New(server.Config{LongPollTimeout: 100 * time.Millisecond},
		sessions, dispatcher, questionnaire, table, tabs, catalog, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := daemon.NewSweeper(daemon.SweeperConfig{Interval: 20 * time.Millisecond}, sessions, nil, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sweeper.Run(ctx)
	}()

	return &stack{
		store:    store,
		table:    table,
		tabs:     tabs,
		sessions: sessions,
		api:      httptest.NewServer(srv.Handler()),
		cancel:   cancel,
		done:     done,
	}, nil
}

func (s *stack) Close() {
	s.cancel()
	<-s.done
	s.api.Close()
	s.store.Close()
}

func (s *stack) call(method, path string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.api.URL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.api.Client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

func (s *stack) navigate(tabID int, rawURL string) (map[string]any, error) {
	_, body, err := s.call(http.MethodPost, "/api/navigate", map[string]any{"tabId": tabID, "url": rawURL})
	return body, err
}
