package infra

import (
	"context"
	"net/http"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

type analyzeRequest struct {
	URL     string            `json:"url"`
	Domain  string            `json:"domain"`
	Context map[string]string `json:"context"`
}

type analyzeResponse struct {
	IsProductive *bool `json:"isProductive"`
}

// HTTPClassifier implements domain.Classifier against POST /analyze.
type HTTPClassifier struct {
	api serviceClient
}

// NewHTTPClassifier creates a classifier client. A nil client gets a default
// with a 30s timeout.
func NewHTTPClassifier(baseURL string, client *http.Client) *HTTPClassifier {
	return &HTTPClassifier{api: newServiceClient(baseURL, "classifier", client)}
}

// Classify asks the service whether the destination is productive.
// A response without isProductive is treated as unavailable.
func (c *HTTPClassifier) Classify(ctx context.Context, req domain.ClassifyRequest) (bool, error) {
	answers := req.Context
	if answers == nil {
		answers = map[string]string{}
	}

	var resp analyzeResponse
	err := c.api.do(ctx, http.MethodPost, "/analyze", "analyze", analyzeRequest{
		URL:     req.URL,
		Domain:  req.Domain,
		Context: answers,
	}, &resp)
	if err != nil {
		return false, err
	}
	if resp.IsProductive == nil {
		return false, &domain.RemoteError{
			Service: "classifier",
			Op:      "analyze",
			Status:  http.StatusOK,
			Message: "response missing isProductive",
			Err:     domain.ErrRemoteUnavailable,
		}
	}
	return *resp.IsProductive, nil
}

// Ensure HTTPClassifier implements domain.Classifier.
var _ domain.Classifier = (*HTTPClassifier)(nil)
