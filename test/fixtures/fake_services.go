// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// FakeClassifier serves POST /analyze with per-destination verdicts.
type FakeClassifier struct {
	Server *httptest.Server

	mu         sync.Mutex
	verdicts   map[string]bool // Keyed by destination host suffix
	fallback   bool
	status     int
	gate       chan struct{}
	calls      atomic.Int64
	lastDomain string
}

// NewFakeClassifier starts a classifier that answers fallback for unknown hosts.
func NewFakeClassifier(fallback bool) *FakeClassifier {
	f := &FakeClassifier{
		verdicts: make(map[string]bool),
		fallback: fallback,
		status:   http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", f.analyze)
	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the base URL.
func (f *FakeClassifier) URL() string { return f.Server.URL }

// Close stops the server.
func (f *FakeClassifier) Close() {
	f.Open()
	f.Server.Close()
}

// SetVerdict fixes the verdict for a host and its subdomains.
func (f *FakeClassifier) SetVerdict(host string, productive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[host] = productive
}

// FailWith makes every request answer status. Use http.StatusOK to recover.
func (f *FakeClassifier) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Hold blocks requests until Open is called.
func (f *FakeClassifier) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Open releases held requests.
func (f *FakeClassifier) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns how many requests were received.
func (f *FakeClassifier) Calls() int64 { return f.calls.Load() }

// LastDomain returns the focus domain of the last request.
func (f *FakeClassifier) LastDomain() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDomain
}

func (f *FakeClassifier) analyze(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	var req struct {
		URL     string            `json:"url"`
		Domain  string            `json:"domain"`
		Context map[string]string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	gate := f.gate
	status := f.status
	f.lastDomain = req.Domain
	verdict := f.fallback
	if u, err := url.Parse(req.URL); err == nil {
		host := strings.ToLower(u.Hostname())
		for suffix, v := range f.verdicts {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				verdict = v
				break
			}
		}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isProductive": verdict})
}

// FakeQuestionService serves the three question endpoints.
type FakeQuestionService struct {
	Server *httptest.Server

	mu           sync.Mutex
	questions    []string
	forbidden    string
	failures     int
	contexts     []map[string]string
	getQuestions atomic.Int64
}

// NewFakeQuestionService starts a service offering questions in order.
func NewFakeQuestionService(questions ...string) *FakeQuestionService {
	f := &FakeQuestionService{questions: questions}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /getQuestions", f.handleGetQuestions)
	mux.HandleFunc("POST /get_question", f.handleNext)
	mux.HandleFunc("POST /contextualize", f.handleContextualize)
	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the base URL.
func (f *FakeQuestionService) URL() string { return f.Server.URL }

// Close stops the server.
func (f *FakeQuestionService) Close() { f.Server.Close() }

// Forbid makes getQuestions answer 403 with message. Empty clears it.
func (f *FakeQuestionService) Forbid(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forbidden = message
}

// FailNext makes the next n getQuestions calls answer 503.
func (f *FakeQuestionService) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

// GetQuestionsCalls returns how many getQuestions requests arrived.
func (f *FakeQuestionService) GetQuestionsCalls() int64 { return f.getQuestions.Load() }

// Contexts returns the answer sets submitted to /contextualize.
func (f *FakeQuestionService) Contexts() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.contexts...)
}

func (f *FakeQuestionService) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	f.getQuestions.Add(1)

	f.mu.Lock()
	forbidden := f.forbidden
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	questions := append([]string(nil), f.questions...)
	f.mu.Unlock()

	switch {
	case forbidden != "":
		writeJSON(w, http.StatusForbidden, map[string]string{"error": forbidden})
	case fail:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try later"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
	}
}

func (f *FakeQuestionService) handleNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain  string            `json:"domain"`
		Context map[string]string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if _, answered := req.Context[q]; !answered {
			writeJSON(w, http.StatusOK, map[string]any{"question": q, "done": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": true})
}

func (f *FakeQuestionService) handleContextualize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain  string            `json:"domain"`
		Context map[string]string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.contexts = append(f.contexts, req.Context)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
