package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/session"
)

type fakeInjector struct {
	injected []models.Response
}

func (f *fakeInjector) InjectResponse(response models.Response) {
	f.injected = append(f.injected, response)
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(session.NewInMemoryStore())
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Status != models.APIStatusOK {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	s := NewServer(session.NewInMemoryStore())
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", rec.Code)
	}
}

func TestSessionHandler(t *testing.T) {
	store := session.NewInMemoryStore()
	if err := store.StartSurvey(context.Background(), "16475550100", "s1", "r1", 4); err != nil {
		t.Fatalf("StartSurvey failed: %v", err)
	}
	s := NewServer(store)

	rec := httptest.NewRecorder()
	s.sessionHandler(rec, httptest.NewRequest(http.MethodGet, "/sessions?user=16475550100", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status models.APIStatus `json:"status"`
		Result struct {
			UserID         string `json:"user_id"`
			State          string `json:"state"`
			SurveyID       string `json:"survey_id"`
			TotalQuestions int    `json:"total_questions"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Result.UserID != "16475550100" || resp.Result.SurveyID != "s1" || resp.Result.TotalQuestions != 4 {
		t.Errorf("Unexpected summary: %+v", resp.Result)
	}
	if resp.Result.State != string(session.StateInSurvey) {
		t.Errorf("State = %s, want %s", resp.Result.State, session.StateInSurvey)
	}
}

func TestSessionHandlerUnknownUser(t *testing.T) {
	s := NewServer(session.NewInMemoryStore())
	rec := httptest.NewRecorder()
	s.sessionHandler(rec, httptest.NewRequest(http.MethodGet, "/sessions?user=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func TestSessionHandlerMissingUserParam(t *testing.T) {
	s := NewServer(session.NewInMemoryStore())
	rec := httptest.NewRecorder()
	s.sessionHandler(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTwilioWebhookInjectsMessage(t *testing.T) {
	inj := &fakeInjector{}
	s := NewServer(session.NewInMemoryStore(), WithResponseInjector(inj))

	rec := httptest.NewRecorder()
	s.twilioWebhookHandler(rec, postForm("/webhook/twilio", url.Values{
		"From": {"whatsapp:+16475550100"},
		"Body": {"/start"},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if len(inj.injected) != 1 {
		t.Fatalf("Injected %d messages, want 1", len(inj.injected))
	}
	got := inj.injected[0]
	if got.From != "+16475550100" || got.Body != "/start" {
		t.Errorf("Unexpected response: %+v", got)
	}
	if got.Location != nil {
		t.Error("Text message should carry no location")
	}
}

func TestTwilioWebhookParsesLocation(t *testing.T) {
	inj := &fakeInjector{}
	s := NewServer(session.NewInMemoryStore(), WithResponseInjector(inj))

	rec := httptest.NewRecorder()
	s.twilioWebhookHandler(rec, postForm("/webhook/twilio", url.Values{
		"From":      {"whatsapp:+16475550100"},
		"Latitude":  {"43.6532"},
		"Longitude": {"-79.3832"},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	loc := inj.injected[0].Location
	if loc == nil || loc.Latitude != 43.6532 || loc.Longitude != -79.3832 {
		t.Errorf("Unexpected location: %+v", loc)
	}
}

func TestTwilioWebhookRequiresSender(t *testing.T) {
	inj := &fakeInjector{}
	s := NewServer(session.NewInMemoryStore(), WithResponseInjector(inj))

	rec := httptest.NewRecorder()
	s.twilioWebhookHandler(rec, postForm("/webhook/twilio", url.Values{"Body": {"hello"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if len(inj.injected) != 0 {
		t.Error("Senderless webhook must not inject")
	}
}
