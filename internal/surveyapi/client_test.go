package surveyapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithBaseURL(srv.URL), WithAPIToken("test-token"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestQuestionsSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/surveys/s1/questions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"questions": []models.Question{
				{ID: 1, Position: 0, Text: "First", Type: models.QuestionTypeText},
				{ID: 2, Position: 1, Text: "Second", Type: models.QuestionTypeRating},
			},
		})
	}))

	questions, err := client.Questions(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Questions failed: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != 1 || questions[1].Type != models.QuestionTypeRating {
		t.Errorf("Unexpected questions: %+v", questions)
	}
}

func TestQuestionsNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such survey"})
	}))

	_, err := client.Questions(context.Background(), "missing")
	if !errors.Is(err, models.ErrSurveyNotFound) {
		t.Errorf("Expected ErrSurveyNotFound, got %v", err)
	}
}

func TestServerErrorMapsToRemoteRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.Questions(context.Background(), "s1")
	if !errors.Is(err, models.ErrRemoteRejected) {
		t.Errorf("Expected ErrRemoteRejected, got %v", err)
	}
}

func TestNetworkFailureMapsToUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	srv.Close()

	_, err = client.Questions(context.Background(), "s1")
	if !errors.Is(err, models.ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
}

func TestSubmitPostsAnswer(t *testing.T) {
	var got struct {
		QuestionID models.QuestionID `json:"question_id"`
		Answer     models.Answer     `json:"answer"`
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/responses/r1/answers" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode failed: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.Submit(context.Background(), "r1", 42, models.Answer{Text: "blue"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got.QuestionID != 42 || got.Answer.Text != "blue" {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.Submit(context.Background(), "r1", 404, models.Answer{Text: "x"})
	if !errors.Is(err, models.ErrQuestionNotFound) {
		t.Errorf("Expected ErrQuestionNotFound, got %v", err)
	}
}

func TestNextStepDecodesDeterminant(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses/r1/next" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.GoToQuestion(7))
	}))

	step, err := client.NextStep(context.Background(), "r1", 3, models.Answer{Text: "yes"})
	if err != nil {
		t.Fatalf("NextStep failed: %v", err)
	}
	if step.Action != models.NextStepGoTo || step.QuestionID != 7 {
		t.Errorf("Unexpected step: %+v", step)
	}
}

func TestCompleteMarksResponse(t *testing.T) {
	var called bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == "/responses/r1/complete"
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Complete(context.Background(), "r1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !called {
		t.Error("Completion endpoint was not called")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("Expected error for missing base URL")
	}
}
