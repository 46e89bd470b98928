// Package session manages per-respondent conversation state for survey dialogues.
package session

import (
	"sort"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// StateType represents a phase of the survey dialogue state machine.
type StateType string

const (
	// StateIdle means the user has interacted but selected nothing.
	StateIdle StateType = "IDLE"
	// StateWaitingSurveySelection means the user was offered surveys to pick from.
	StateWaitingSurveySelection StateType = "WAITING_SURVEY_SELECTION"
	// StateInSurvey means a survey response is open for the user.
	StateInSurvey StateType = "IN_SURVEY"
	// StateAnsweringQuestion means a question was rendered and an answer is awaited.
	StateAnsweringQuestion StateType = "ANSWERING_QUESTION"
	// StateResponseComplete means the survey response was submitted in full.
	StateResponseComplete StateType = "RESPONSE_COMPLETE"
	// StateCancelled means the user abandoned the survey.
	StateCancelled StateType = "CANCELLED"
)

// SessionTTL is how long a session may sit idle before it is treated as
// absent. Expiry is lazy: nothing deletes the record on a clock, stale
// records are simply ignored and replaced on next access.
const SessionTTL = 30 * time.Minute

// ConversationState is the per-user session record.
type ConversationState struct {
	UserID         string           `json:"user_id"`
	Current        StateType        `json:"current_state"`
	SurveyID       string           `json:"survey_id,omitempty"`
	ResponseID     string           `json:"response_id,omitempty"`
	QuestionIndex  models.ListIndex `json:"question_index"`
	TotalQuestions int              `json:"total_questions"`
	// VisitedQuestions records stable question ids, never positions. It is
	// an ordered, duplicate-free list used for cycle prevention.
	VisitedQuestions []models.QuestionID                `json:"visited_questions,omitempty"`
	AnsweredIndices  map[models.ListIndex]bool          `json:"answered_indices,omitempty"`
	SkippedIndices   []models.ListIndex                 `json:"skipped_indices,omitempty"`
	CachedAnswers    map[models.ListIndex]models.Answer `json:"cached_answers,omitempty"`
	History          []StateType                        `json:"history,omitempty"`
	CreatedAt        time.Time                          `json:"created_at"`
	LastActivityAt   time.Time                          `json:"last_activity_at"`
}

// NewConversationState creates a fresh idle session for a user.
func NewConversationState(userID string, now time.Time) *ConversationState {
	return &ConversationState{
		UserID:         userID,
		Current:        StateIdle,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// IsExpired reports whether the session has idled past SessionTTL.
func (s *ConversationState) IsExpired(now time.Time) bool {
	return now.Sub(s.LastActivityAt) > SessionTTL
}

// HasActiveResponse reports whether a survey response is open.
func (s *ConversationState) HasActiveResponse() bool {
	return s.ResponseID != "" && (s.Current == StateInSurvey || s.Current == StateAnsweringQuestion)
}

// HasVisited reports whether the stable question id was already processed.
func (s *ConversationState) HasVisited(id models.QuestionID) bool {
	for _, v := range s.VisitedQuestions {
		if v == id {
			return true
		}
	}
	return false
}

// RecordVisited appends a stable question id to the visited list. Duplicate
// ids are absorbed, so the list size always equals the count of distinct
// ids recorded.
func (s *ConversationState) RecordVisited(id models.QuestionID) {
	if s.HasVisited(id) {
		return
	}
	s.VisitedQuestions = append(s.VisitedQuestions, id)
}

// MarkAnswered caches the payload for an index and marks it answered.
// An index already marked skipped is invalid input and is rejected rather
// than silently double-counting toward completion.
func (s *ConversationState) MarkAnswered(index models.ListIndex, answer models.Answer) error {
	if s.isSkipped(index) {
		return models.ErrAnsweredAndSkipped
	}
	if s.AnsweredIndices == nil {
		s.AnsweredIndices = make(map[models.ListIndex]bool)
	}
	if s.CachedAnswers == nil {
		s.CachedAnswers = make(map[models.ListIndex]models.Answer)
	}
	s.AnsweredIndices[index] = true
	s.CachedAnswers[index] = answer
	return nil
}

// MarkSkipped records an index as skipped, keeping the list sorted and free
// of duplicates. An index already marked answered is rejected.
func (s *ConversationState) MarkSkipped(index models.ListIndex) error {
	if s.AnsweredIndices[index] {
		return models.ErrAnsweredAndSkipped
	}
	if s.isSkipped(index) {
		return nil
	}
	s.SkippedIndices = append(s.SkippedIndices, index)
	sort.Slice(s.SkippedIndices, func(i, j int) bool {
		return s.SkippedIndices[i] < s.SkippedIndices[j]
	})
	return nil
}

func (s *ConversationState) isSkipped(index models.ListIndex) bool {
	for _, v := range s.SkippedIndices {
		if v == index {
			return true
		}
	}
	return false
}

// IsAllAnswered reports whether every question was either answered or
// skipped. The two sets are independent and disjoint by construction.
func (s *ConversationState) IsAllAnswered() bool {
	if s.TotalQuestions == 0 {
		return false
	}
	return len(s.AnsweredIndices)+len(s.SkippedIndices) == s.TotalQuestions
}

// ProgressPercent returns the displayed completion percentage. Skipped
// questions are intentionally excluded from displayed progress.
func (s *ConversationState) ProgressPercent() int {
	if s.TotalQuestions == 0 {
		return 0
	}
	return 100 * len(s.AnsweredIndices) / s.TotalQuestions
}

// PushState records the current state on the history stack and transitions.
func (s *ConversationState) PushState(next StateType) {
	s.History = append(s.History, s.Current)
	s.Current = next
}

// ClearSurveyScoped drops all survey-scoped fields while keeping the
// session record itself (used on completion and cancellation).
func (s *ConversationState) ClearSurveyScoped() {
	s.SurveyID = ""
	s.ResponseID = ""
	s.QuestionIndex = 0
	s.TotalQuestions = 0
	s.VisitedQuestions = nil
	s.AnsweredIndices = nil
	s.SkippedIndices = nil
	s.CachedAnswers = nil
}

// Clone returns a deep copy so callers cannot alias store-internal state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.VisitedQuestions != nil {
		cp.VisitedQuestions = append([]models.QuestionID(nil), s.VisitedQuestions...)
	}
	if s.SkippedIndices != nil {
		cp.SkippedIndices = append([]models.ListIndex(nil), s.SkippedIndices...)
	}
	if s.History != nil {
		cp.History = append([]StateType(nil), s.History...)
	}
	if s.AnsweredIndices != nil {
		cp.AnsweredIndices = make(map[models.ListIndex]bool, len(s.AnsweredIndices))
		for k, v := range s.AnsweredIndices {
			cp.AnsweredIndices[k] = v
		}
	}
	if s.CachedAnswers != nil {
		cp.CachedAnswers = make(map[models.ListIndex]models.Answer, len(s.CachedAnswers))
		for k, v := range s.CachedAnswers {
			cp.CachedAnswers[k] = v
		}
	}
	return &cp
}
