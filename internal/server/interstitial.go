package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

var interstitialTemplate = template.Must(template.New("interstitial").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{- if .ReloadSeconds}}
<meta http-equiv="refresh" content="{{.ReloadSeconds}}">
{{- end}}
<style>
body { font-family: system-ui, sans-serif; background: #1d1f21; color: #e8e8e8; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
main { max-width: 32rem; text-align: center; }
.countdown { font-size: 2.5rem; font-variant-numeric: tabular-nums; margin: 1rem 0; }
.error { color: #f0a0a0; }
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .Domain}}
<p>Focus: <strong>{{.Domain}}</strong></p>
{{- end}}
{{- if .Remaining}}
<div class="countdown" id="countdown" data-end="{{.EndMillis}}">{{.Remaining}}</div>
<script>
(function () {
  var el = document.getElementById("countdown");
  var end = Number(el.dataset.end);
  function pad(n) { return n < 10 ? "0" + n : String(n); }
  function tick() {
    var left = Math.max(0, Math.floor((end - Date.now()) / 1000));
    el.textContent = pad(Math.floor(left / 3600)) + ":" + pad(Math.floor(left / 60) % 60) + ":" + pad(left % 60);
    if (left > 0) { setTimeout(tick, 1000); }
  }
  tick();
})();
</script>
{{- end}}
{{- if .LastError}}
<p class="error">{{.LastError}}</p>
{{- end}}
</main>
</body>
</html>
`))

type interstitialView struct {
	Title         string
	Message       string
	Domain        string
	Remaining     string
	EndMillis     int64
	LastError     string
	ReloadSeconds int
}

func (s *Server) handleInterstitial(w http.ResponseWriter, r *http.Request) {
	reason := domain.Reason(r.URL.Query().Get("reason"))
	snap := s.sessions.Snapshot()

	view := interstitialView{Domain: snap.Domain}
	switch reason {
	case domain.ReasonAnalyzing:
		view.Title = "Analyzing"
		view.Message = "Checking whether this page fits your focus session."
		view.ReloadSeconds = int(s.config.AnalyzingReload / time.Second)
		if view.ReloadSeconds < 1 {
			view.ReloadSeconds = 1
		}
	case domain.ReasonBlocked:
		view.Title = "Blocked"
		view.Message = "This site is blocked until your focus window ends."
		if end, ok := s.blockEnd(snap); ok {
			view.EndMillis = end.UnixMilli()
			view.Remaining = formatRemaining(time.Until(end))
		}
	default:
		view.Title = "No focus session"
		view.Message = "Choose a focus domain and answer a few questions to start browsing."
		view.LastError = snap.LastError
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := interstitialTemplate.Execute(w, view); err != nil {
		s.logger.Warn("failed to render interstitial", zap.Error(err))
	}
}

// blockEnd prefers the live window and falls back to the persisted blockData.
func (s *Server) blockEnd(snap domain.Snapshot) (time.Time, bool) {
	if !snap.EndTime.IsZero() {
		return snap.EndTime, true
	}
	if s.store == nil {
		return time.Time{}, false
	}
	raw, found, err := s.store.Get(domain.RecordBlockData)
	if err != nil || !found {
		return time.Time{}, false
	}
	var rec domain.BlockRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.EndTime == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(rec.EndTime), true
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	sec := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
