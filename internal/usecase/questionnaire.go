package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// QuestionnaireConfig controls question fetch retries.
type QuestionnaireConfig struct {
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultQuestionnaireConfig returns default retry settings.
func DefaultQuestionnaireConfig() QuestionnaireConfig {
	return QuestionnaireConfig{
		MaxTries:       4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Questionnaire drives contextualization for the session in Contextualizing.
// Answers are scoped to one session id and dropped when it changes.
type Questionnaire struct {
	mu        sync.Mutex
	config    QuestionnaireConfig
	questions domain.QuestionService
	sessions  *SessionManager
	logger    *zap.Logger

	sessionID string
	list      []string
	current   string
	answers   map[string]string
}

// NewQuestionnaire creates a questionnaire bound to the session manager.
func NewQuestionnaire(
	config QuestionnaireConfig,
	questions domain.QuestionService,
	sessions *SessionManager,
	logger *zap.Logger,
) *Questionnaire {
	if config.MaxTries == 0 {
		config.MaxTries = 1
	}
	return &Questionnaire{
		config:    config,
		questions: questions,
		sessions:  sessions,
		logger:    logger,
		answers:   make(map[string]string),
	}
}

// GetQuestions fetches the question list for focusDomain. Unavailability is
// retried with exponential backoff; Forbidden is returned at once and noted on
// the session for the UI.
func (q *Questionnaire) GetQuestions(ctx context.Context, focusDomain string) ([]string, error) {
	snap, err := q.contextualizing(focusDomain)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.config.InitialBackoff
	b.MaxInterval = q.config.MaxBackoff

	attempt := 0
	list, err := backoff.Retry(ctx, func() ([]string, error) {
		attempt++
		list, err := q.questions.GetQuestions(ctx, focusDomain)
		if err == nil {
			return list, nil
		}
		if errors.Is(err, domain.ErrRemoteUnavailable) {
			q.logger.Warn("question fetch failed, retrying",
				zap.String("domain", focusDomain),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(q.config.MaxTries))
	if err != nil {
		q.sessions.NoteContextError(snap.SessionID, err)
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.bindLocked(snap.SessionID)
	q.list = append([]string(nil), list...)
	return list, nil
}

// NextQuestion asks the service for the next question given the answers so
// far. done is true when the service has enough context.
func (q *Questionnaire) NextQuestion(ctx context.Context) (question string, done bool, err error) {
	snap, err := q.contextualizing("")
	if err != nil {
		return "", false, err
	}

	q.mu.Lock()
	q.bindLocked(snap.SessionID)
	answers := copyAnswers(q.answers)
	q.mu.Unlock()

	question, done, err = q.questions.NextQuestion(ctx, snap.Domain, answers)
	if err != nil {
		q.sessions.NoteContextError(snap.SessionID, err)
		return "", false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sessionID == snap.SessionID {
		q.current = question
	}
	return question, done, nil
}

// Answer records an answer. An empty question answers the last one asked.
func (q *Questionnaire) Answer(question, answer string) error {
	snap, err := q.contextualizing("")
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.bindLocked(snap.SessionID)
	if question == "" {
		question = q.current
	}
	if question == "" {
		return fmt.Errorf("no question to answer")
	}
	q.answers[question] = answer
	return nil
}

// Contextualize submits the collected answers and returns them.
func (q *Questionnaire) Contextualize(ctx context.Context, focusDomain string) (map[string]string, error) {
	snap, err := q.contextualizing(focusDomain)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.bindLocked(snap.SessionID)
	answers := copyAnswers(q.answers)
	q.mu.Unlock()

	if err := q.questions.Contextualize(ctx, snap.Domain, answers); err != nil {
		q.sessions.NoteContextError(snap.SessionID, err)
		return nil, err
	}
	return answers, nil
}

// Complete opens the block window. A nil answers map uses the ones collected
// for the current session.
func (q *Questionnaire) Complete(ctx context.Context, answers map[string]string, duration time.Duration) error {
	if answers == nil {
		snap := q.sessions.Snapshot()
		q.mu.Lock()
		q.bindLocked(snap.SessionID)
		answers = copyAnswers(q.answers)
		q.mu.Unlock()
	}
	if err := q.sessions.CompleteContextualization(ctx, answers, duration); err != nil {
		return err
	}
	q.Reset()
	return nil
}

// Reset drops questions and answers.
func (q *Questionnaire) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list = nil
	q.current = ""
	q.answers = make(map[string]string)
}

// Answers returns a copy of the collected answers.
func (q *Questionnaire) Answers() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return copyAnswers(q.answers)
}

// contextualizing checks the session is collecting context, optionally for a
// specific focus domain.
func (q *Questionnaire) contextualizing(focusDomain string) (domain.Snapshot, error) {
	snap := q.sessions.Snapshot()
	if snap.State != domain.StateContextualizing {
		return snap, fmt.Errorf("%w: no session is contextualizing", domain.ErrInvalidTransition)
	}
	if focusDomain != "" && focusDomain != snap.Domain {
		return snap, fmt.Errorf("%w: session is for %q, not %q", domain.ErrInvalidTransition, snap.Domain, focusDomain)
	}
	return snap, nil
}

func (q *Questionnaire) bindLocked(sessionID string) {
	if q.sessionID == sessionID {
		return
	}
	q.sessionID = sessionID
	q.list = nil
	q.current = ""
	q.answers = make(map[string]string)
}
