package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// sessionSummary is the operator-facing view of one conversation session.
type sessionSummary struct {
	UserID          string `json:"user_id"`
	State           string `json:"state"`
	SurveyID        string `json:"survey_id,omitempty"`
	ResponseID      string `json:"response_id,omitempty"`
	QuestionIndex   int    `json:"question_index"`
	TotalQuestions  int    `json:"total_questions"`
	ProgressPercent int    `json:"progress_percent"`
	LastActivityAt  string `json:"last_activity_at"`
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing user query parameter"))
		return
	}

	state, err := s.sessions.GetState(r.Context(), userID)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "user", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active session for user"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(sessionSummary{
		UserID:          state.UserID,
		State:           string(state.Current),
		SurveyID:        state.SurveyID,
		ResponseID:      state.ResponseID,
		QuestionIndex:   int(state.QuestionIndex),
		TotalQuestions:  state.TotalQuestions,
		ProgressPercent: state.ProgressPercent(),
		LastActivityAt:  state.LastActivityAt.Format(time.RFC3339),
	}))
}

// twilioWebhookHandler receives inbound WhatsApp messages from Twilio and
// feeds them into the messaging pipeline. Twilio posts form-encoded fields;
// location shares arrive as Latitude/Longitude.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
		return
	}

	from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
	body := r.PostFormValue("Body")
	if from == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing From field"))
		return
	}

	response := models.Response{
		From:   from,
		ChatID: from,
		Body:   body,
		Time:   time.Now().Unix(),
	}
	if loc := parseLocation(r.PostFormValue("Latitude"), r.PostFormValue("Longitude")); loc != nil {
		response.Location = loc
	}

	s.injector.InjectResponse(response)
	slog.Debug("Server.twilioWebhookHandler: message injected", "from", from, "has_location", response.Location != nil)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// parseLocation returns a Location when both coordinates parse, nil otherwise.
func parseLocation(latStr, lonStr string) *models.Location {
	if latStr == "" || lonStr == "" {
		return nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil
	}
	return &models.Location{Latitude: lat, Longitude: lon}
}
