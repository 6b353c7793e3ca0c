package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

const maxBodyBytes = 1 << 20

type navigateRequest struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

type navigateResponse struct {
	Action      domain.NavAction `json:"action"`
	Reason      domain.Reason    `json:"reason,omitempty"`
	RedirectURL string           `json:"redirectUrl,omitempty"`
	Domain      string           `json:"domain,omitempty"`
	Cached      bool             `json:"cached"`
	Error       string           `json:"error,omitempty"`
}

type setDomainRequest struct {
	Domain string `json:"domain"`
}

// completeRequest mirrors the popup payload. TimeLimit is in minutes;
// Duration accepts Go duration syntax and wins when both are set.
type completeRequest struct {
	Context   map[string]string `json:"context"`
	TimeLimit int               `json:"timeLimit"`
	Duration  string            `json:"duration"`
}

type answerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type contextualizeRequest struct {
	Domain string `json:"domain"`
}

type domainView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DefaultDuration string `json:"defaultDuration"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}

	decision := s.dispatcher.OnNavigate(r.Context(), req.TabID, req.URL)
	resp := navigateResponse{
		Action:      decision.Action,
		Reason:      decision.Reason,
		RedirectURL: decision.RedirectURL,
		Domain:      decision.Domain,
		Cached:      decision.Cached,
	}
	if decision.Err != nil {
		resp.Error = decision.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, revision := s.rules.Snapshot()
	if rules == nil {
		rules = []domain.RedirectRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revision": revision,
		"rules":    rules,
	})
}

// handleRuleMatch evaluates the installed rules for one URL, for clients that
// cannot install declarative rules themselves.
func (s *Server) handleRuleMatch(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	rule, ok := s.rules.Match(target)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"matched": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched":     true,
		"ruleId":      rule.ID,
		"redirectUrl": rule.RedirectURL,
	})
}

func (s *Server) handleTabCommands(w http.ResponseWriter, r *http.Request) {
	var commands []domain.TabCommand
	if r.URL.Query().Get("wait") != "" {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.LongPollTimeout)
		defer cancel()
		commands = s.tabs.Wait(ctx)
	} else {
		commands = s.tabs.Drain()
	}
	if commands == nil {
		commands = []domain.TabCommand{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleSetDomain(w http.ResponseWriter, r *http.Request) {
	var req setDomainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Domain == "" {
		writeJSONError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if err := s.sessions.SetDomain(r.Context(), req.Domain); err != nil {
		s.writeError(w, "set domain", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	duration, err := s.sessionDuration(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.questionnaire.Complete(r.Context(), req.Context, duration); err != nil {
		s.writeError(w, "complete contextualization", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.Context()); err != nil {
		s.writeError(w, "end session", err)
		return
	}
	s.questionnaire.Reset()
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleCheckBlock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"blockAll": s.sessions.CheckBlock()})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.GetAll()
	views := make([]domainView, 0, len(all))
	for _, d := range all {
		views = append(views, domainView{
			ID:              d.ID,
			Name:            d.Name,
			Description:     d.Description,
			DefaultDuration: d.DefaultDuration.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": views})
}

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	focusDomain := r.URL.Query().Get("domain")
	if focusDomain == "" {
		focusDomain = s.sessions.Snapshot().Domain
	}
	questions, err := s.questionnaire.GetQuestions(r.Context(), focusDomain)
	if err != nil {
		s.writeError(w, "get questions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	question, done, err := s.questionnaire.NextQuestion(r.Context())
	if err != nil {
		s.writeError(w, "next question", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question": question,
		"done":     done,
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.questionnaire.Answer(req.Question, req.Answer); err != nil {
		s.writeError(w, "answer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": s.questionnaire.Answers()})
}

func (s *Server) handleContextualize(w http.ResponseWriter, r *http.Request) {
	var req contextualizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answers, err := s.questionnaire.Contextualize(r.Context(), req.Domain)
	if err != nil {
		s.writeError(w, "contextualize", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": answers})
}

func (s *Server) handleResetQuestions(w http.ResponseWriter, r *http.Request) {
	s.questionnaire.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"answers": map[string]string{}})
}

// sessionDuration picks the window length: explicit duration, then timeLimit
// minutes, then the focus domain default.
func (s *Server) sessionDuration(req completeRequest) (time.Duration, error) {
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid duration %q", req.Duration)
		}
		return d, nil
	}
	if req.TimeLimit < 0 {
		return 0, fmt.Errorf("invalid timeLimit %d", req.TimeLimit)
	}
	if req.TimeLimit > 0 {
		return time.Duration(req.TimeLimit) * time.Minute, nil
	}
	if fd, err := s.catalog.GetByID(s.sessions.Snapshot().Domain); err == nil && fd.DefaultDuration > 0 {
		return fd.DefaultDuration, nil
	}
	return policy.DefaultSessionDuration, nil
}

// writeError maps the error taxonomy to a status. Forbidden messages from the
// Question Service are passed through verbatim for display.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	message := err.Error()

	var remote *domain.RemoteError
	if errors.As(err, &remote) && remote.Message != "" && errors.Is(err, domain.ErrForbidden) {
		message = remote.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Debug("api request rejected", zap.String("op", op), zap.Error(err))
	}
	writeJSONError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnknownDomain), errors.Is(err, domain.ErrInvalidDestination):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRuleSync):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
