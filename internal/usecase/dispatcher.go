package usecase

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultClassifyTimeout bounds one shared classifier call.
const DefaultClassifyTimeout = 20 * time.Second

// DispatcherConfig holds navigation dispatch settings.
type DispatcherConfig struct {
	InterstitialURL string
	SelfOrigins     []string // Base URLs of the classifier, question service and this daemon
	ClassifyTimeout time.Duration
}

// NavigationDispatcher reacts to navigation events. It never decides that a
// window has expired; it only reads session manager state.
type NavigationDispatcher struct {
	config     DispatcherConfig
	selfHosts  map[string]struct{}
	sessions   *SessionManager
	cache      *ClassificationCache
	classifier domain.Classifier
	tabs       domain.TabNavigator
	logger     *zap.Logger
}

// NewNavigationDispatcher creates a dispatcher.
func NewNavigationDispatcher(
	config DispatcherConfig,
	sessions *SessionManager,
	cache *ClassificationCache,
	classifier domain.Classifier,
	tabs domain.TabNavigator,
	logger *zap.Logger,
) *NavigationDispatcher {
	if config.ClassifyTimeout <= 0 {
		config.ClassifyTimeout = DefaultClassifyTimeout
	}
	selfHosts := make(map[string]struct{})
	for _, origin := range append([]string{config.InterstitialURL}, config.SelfOrigins...) {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			selfHosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}
	return &NavigationDispatcher{
		config:     config,
		selfHosts:  selfHosts,
		sessions:   sessions,
		cache:      cache,
		classifier: classifier,
		tabs:       tabs,
		logger:     logger,
	}
}

// OnNavigate decides what happens to a tab navigating to rawURL. All
// classification failures end in a block decision.
func (d *NavigationDispatcher) OnNavigate(ctx context.Context, tabID int, rawURL string) domain.NavigationDecision {
	return d.dispatch(ctx, tabID, rawURL, true)
}

func (d *NavigationDispatcher) dispatch(ctx context.Context, tabID int, rawURL string, retryStale bool) domain.NavigationDecision {
	decision := domain.NavigationDecision{TabID: tabID, URL: rawURL}

	u, err := ParseDestination(rawURL)
	if err != nil {
		decision.Action = domain.NavIgnore
		d.logger.Debug("skipping internal navigation", zap.String("url", rawURL), zap.Error(err))
		return decision
	}
	if d.isSelf(u) {
		decision.Action = domain.NavIgnore
		return decision
	}

	dest := DestinationDomain(u)
	decision.Domain = dest
	snap := d.sessions.Snapshot()

	switch snap.State {
	case domain.StateNoSession:
		// The catch-all rule already redirects; nothing to do per navigation.
		return d.redirectDecision(decision, domain.ReasonNoSession)

	case domain.StateContextualizing:
		decision = d.redirectDecision(decision, domain.ReasonNoSession)
		d.redirectTab(ctx, tabID, decision.RedirectURL)
		return decision
	}

	if productive, ok := d.cache.Lookup(dest, snap.Domain); ok {
		decision.Cached = true
		if productive {
			decision.Action = domain.NavAllow
			return decision
		}
		decision = d.redirectDecision(decision, domain.ReasonBlocked)
		d.redirectTab(ctx, tabID, decision.RedirectURL)
		return decision
	}

	d.redirectTab(ctx, tabID, InterstitialURL(d.config.InterstitialURL, domain.ReasonAnalyzing))

	productive, shared, err := d.cache.Resolve(ctx, dest, snap.Domain, func(callCtx context.Context) (bool, error) {
		callCtx, cancel := context.WithTimeout(callCtx, d.config.ClassifyTimeout)
		defer cancel()
		return d.classifier.Classify(callCtx, domain.ClassifyRequest{
			URL:     rawURL,
			Domain:  snap.Domain,
			Context: snap.Context,
		})
	})
	if err != nil && ctx.Err() != nil {
		// The tab went away; the shared call still completes for other waiters.
		d.logger.Debug("navigation abandoned during classification", zap.String("destination", dest))
		decision.Action = domain.NavIgnore
		decision.Err = ctx.Err()
		return decision
	}
	if err != nil {
		d.logger.Warn("classification failed, blocking",
			zap.String("destination", dest),
			zap.Error(err))
		decision.Err = err
		productive = false
	}

	applied, applyErr := d.sessions.ApplyVerdict(context.WithoutCancel(ctx), snap.SessionID, dest, productive)
	if !applied {
		if retryStale {
			return d.dispatch(ctx, tabID, rawURL, false)
		}
		return d.redirectDecision(decision, domain.ReasonNoSession)
	}
	if applyErr != nil {
		d.logger.Error("failed to republish block rule", zap.String("destination", dest), zap.Error(applyErr))
		if decision.Err == nil {
			decision.Err = applyErr
		}
	}

	d.logger.Debug("destination classified",
		zap.String("destination", dest),
		zap.Bool("productive", productive),
		zap.Bool("shared", shared))

	if productive {
		decision.Action = domain.NavAllow
		if err := d.tabs.Resume(ctx, tabID, rawURL); err != nil {
			d.logger.Warn("failed to resume tab", zap.Int("tab_id", tabID), zap.Error(err))
		}
		return decision
	}

	decision = d.redirectDecision(decision, domain.ReasonBlocked)
	d.redirectTab(ctx, tabID, decision.RedirectURL)
	return decision
}

func (d *NavigationDispatcher) isSelf(u *url.URL) bool {
	_, ok := d.selfHosts[strings.ToLower(u.Host)]
	return ok
}

func (d *NavigationDispatcher) redirectDecision(decision domain.NavigationDecision, reason domain.Reason) domain.NavigationDecision {
	decision.Action = domain.NavRedirect
	decision.Reason = reason
	decision.RedirectURL = InterstitialURL(d.config.InterstitialURL, reason)
	return decision
}

func (d *NavigationDispatcher) redirectTab(ctx context.Context, tabID int, target string) {
	if err := d.tabs.Redirect(ctx, tabID, target); err != nil {
		d.logger.Warn("failed to redirect tab",
			zap.Int("tab_id", tabID),
			zap.String("target", target),
			zap.Error(err))
	}
}
