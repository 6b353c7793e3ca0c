package infra

import (
	"context"
	"net/http"
	"net/url"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

type questionsResponse struct {
	Questions []string `json:"questions"`
}

type nextQuestionRequest struct {
	Domain  string            `json:"domain"`
	Context map[string]string `json:"context"`
}

type nextQuestionResponse struct {
	Question string `json:"question"`
	Done     bool   `json:"done"`
}

// HTTPQuestionService implements domain.QuestionService.
type HTTPQuestionService struct {
	api serviceClient
}

// NewHTTPQuestionService creates a question service client.
func NewHTTPQuestionService(baseURL string, client *http.Client) *HTTPQuestionService {
	return &HTTPQuestionService{api: newServiceClient(baseURL, "questions", client)}
}

// GetQuestions calls GET /getQuestions?domain=.
func (s *HTTPQuestionService) GetQuestions(ctx context.Context, focusDomain string) ([]string, error) {
	var resp questionsResponse
	path := "/getQuestions?domain=" + url.QueryEscape(focusDomain)
	if err := s.api.do(ctx, http.MethodGet, path, "getQuestions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// NextQuestion calls POST /get_question.
func (s *HTTPQuestionService) NextQuestion(ctx context.Context, focusDomain string, answers map[string]string) (string, bool, error) {
	var resp nextQuestionResponse
	err := s.api.do(ctx, http.MethodPost, "/get_question", "get_question",
		nextQuestionRequest{Domain: focusDomain, Context: nonNil(answers)}, &resp)
	if err != nil {
		return "", false, err
	}
	if resp.Done {
		return "", true, nil
	}
	return resp.Question, false, nil
}

// Contextualize calls POST /contextualize; any 2xx is success.
func (s *HTTPQuestionService) Contextualize(ctx context.Context, focusDomain string, answers map[string]string) error {
	return s.api.do(ctx, http.MethodPost, "/contextualize", "contextualize",
		nextQuestionRequest{Domain: focusDomain, Context: nonNil(answers)}, nil)
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Ensure HTTPQuestionService implements domain.QuestionService.
var _ domain.QuestionService = (*HTTPQuestionService)(nil)
