// Package surveyapi is an HTTP client for the upstream survey platform. It
// serves question catalogs, persists answers, and resolves branching
// next-step determinants for in-flight responses.
package surveyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// DefaultTimeout bounds every request to the survey platform.
const DefaultTimeout = 15 * time.Second

// maxErrorBodyBytes limits how much of an error response body is read for
// diagnostics.
const maxErrorBodyBytes = 4 << 10

// Opts holds configuration options for the survey API client.
type Opts struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
}

// Option configures the survey API client.
type Option func(*Opts)

// WithBaseURL sets the platform base URL, e.g. "https://surveys.example.com/api".
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) {
		o.BaseURL = baseURL
	}
}

// WithAPIToken sets the bearer token sent on every request.
func WithAPIToken(token string) Option {
	return func(o *Opts) {
		o.APIToken = token
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client talks to the survey platform. It implements the flow package's
// QuestionCatalog, AnswerStore, and FlowAuthority interfaces.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

// NewClient creates a survey platform client with the given options.
func NewClient(opts ...Option) (*Client, error) {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.BaseURL == "" {
		return nil, fmt.Errorf("surveyapi: base URL is required")
	}
	if _, err := url.Parse(o.BaseURL); err != nil {
		return nil, fmt.Errorf("surveyapi: invalid base URL: %w", err)
	}
	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		apiToken: o.APIToken,
		http:     httpClient,
	}, nil
}

// Questions fetches the ordered question list for a survey.
// GET /surveys/{surveyID}/questions
func (c *Client) Questions(ctx context.Context, surveyID string) ([]models.Question, error) {
	var out struct {
		Questions []models.Question `json:"questions"`
	}
	path := fmt.Sprintf("/surveys/%s/questions", url.PathEscape(surveyID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out, models.ErrSurveyNotFound); err != nil {
		return nil, err
	}
	slog.Debug("surveyapi.Questions: fetched catalog", "survey", surveyID, "count", len(out.Questions))
	return out.Questions, nil
}

// Submit persists an answer for a question within a response.
// POST /responses/{responseID}/answers
func (c *Client) Submit(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) error {
	payload := struct {
		QuestionID models.QuestionID `json:"question_id"`
		Answer     models.Answer     `json:"answer"`
	}{QuestionID: questionID, Answer: answer}
	path := fmt.Sprintf("/responses/%s/answers", url.PathEscape(responseID))
	return c.do(ctx, http.MethodPost, path, payload, nil, models.ErrQuestionNotFound)
}

// Complete marks a response as finished upstream.
// POST /responses/{responseID}/complete
func (c *Client) Complete(ctx context.Context, responseID string) error {
	path := fmt.Sprintf("/responses/%s/complete", url.PathEscape(responseID))
	return c.do(ctx, http.MethodPost, path, nil, nil, models.ErrSurveyNotFound)
}

// NextStep asks the platform which question follows the given answer.
// POST /responses/{responseID}/next
func (c *Client) NextStep(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) (models.NextStep, error) {
	payload := struct {
		QuestionID models.QuestionID `json:"question_id"`
		Answer     models.Answer     `json:"answer"`
	}{QuestionID: questionID, Answer: answer}
	var step models.NextStep
	path := fmt.Sprintf("/responses/%s/next", url.PathEscape(responseID))
	if err := c.do(ctx, http.MethodPost, path, payload, &step, models.ErrQuestionNotFound); err != nil {
		return models.NextStep{}, err
	}
	return step, nil
}

// do issues one request and decodes the response into out when non-nil.
// notFound is the sentinel wrapped on a 404 for this endpoint.
func (c *Client) do(ctx context.Context, method, path string, payload, out any, notFound error) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("surveyapi: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("surveyapi: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("surveyapi: %s %s: %w: %w", method, path, models.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, method, path, notFound); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("surveyapi: failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// checkStatus maps HTTP status codes onto the engine's sentinel errors so
// the flow resolver can classify failures without knowing about HTTP.
func checkStatus(resp *http.Response, method, path string, notFound error) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := readErrorDetail(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("surveyapi: %s %s: %w: %s", method, path, notFound, detail)
	}
	return fmt.Errorf("surveyapi: %s %s: status %d: %w: %s", method, path, resp.StatusCode, models.ErrRemoteRejected, detail)
}

// readErrorDetail extracts a short error message from a failed response.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return "(no body)"
	}
	var msg struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &msg); err == nil && msg.Error != "" {
		return msg.Error
	}
	return strings.TrimSpace(string(data))
}
