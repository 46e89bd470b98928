package session

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func TestIsExpired(t *testing.T) {
	now := time.Now()
	state := NewConversationState("user1", now)

	if state.IsExpired(now) {
		t.Error("Fresh session should not be expired")
	}
	if state.IsExpired(now.Add(SessionTTL)) {
		t.Error("Session exactly at TTL should not be expired")
	}
	if !state.IsExpired(now.Add(SessionTTL + time.Second)) {
		t.Error("Session past TTL should be expired")
	}
}

func TestHasActiveResponse(t *testing.T) {
	now := time.Now()
	state := NewConversationState("user1", now)

	if state.HasActiveResponse() {
		t.Error("Idle session should not have an active response")
	}

	state.ResponseID = "resp1"
	state.Current = StateInSurvey
	if !state.HasActiveResponse() {
		t.Error("IN_SURVEY session with response should be active")
	}

	state.Current = StateAnsweringQuestion
	if !state.HasActiveResponse() {
		t.Error("ANSWERING_QUESTION session with response should be active")
	}

	state.Current = StateCancelled
	if state.HasActiveResponse() {
		t.Error("Cancelled session should not have an active response")
	}
}

func TestRecordVisitedDeduplicates(t *testing.T) {
	state := NewConversationState("user1", time.Now())

	state.RecordVisited(77)
	state.RecordVisited(79)
	state.RecordVisited(77)
	state.RecordVisited(78)
	state.RecordVisited(79)

	if len(state.VisitedQuestions) != 3 {
		t.Errorf("Expected 3 distinct visited ids, got %d: %v", len(state.VisitedQuestions), state.VisitedQuestions)
	}
	if !state.HasVisited(77) || !state.HasVisited(78) || !state.HasVisited(79) {
		t.Error("All recorded ids should report visited")
	}
	if state.HasVisited(80) {
		t.Error("Unrecorded id should not report visited")
	}
}

func TestAnsweredAndSkippedAreDisjoint(t *testing.T) {
	state := NewConversationState("user1", time.Now())
	state.TotalQuestions = 5

	if err := state.MarkAnswered(0, models.Answer{Text: "hi"}); err != nil {
		t.Fatalf("MarkAnswered failed: %v", err)
	}
	if err := state.MarkSkipped(0); !errors.Is(err, models.ErrAnsweredAndSkipped) {
		t.Errorf("Skipping an answered index should fail, got %v", err)
	}

	if err := state.MarkSkipped(1); err != nil {
		t.Fatalf("MarkSkipped failed: %v", err)
	}
	if err := state.MarkAnswered(1, models.Answer{Text: "late"}); !errors.Is(err, models.ErrAnsweredAndSkipped) {
		t.Errorf("Answering a skipped index should fail, got %v", err)
	}
}

func TestMarkSkippedSortedUnique(t *testing.T) {
	state := NewConversationState("user1", time.Now())
	state.TotalQuestions = 10

	for _, idx := range []models.ListIndex{4, 1, 4, 2, 1} {
		if err := state.MarkSkipped(idx); err != nil {
			t.Fatalf("MarkSkipped(%d) failed: %v", idx, err)
		}
	}

	want := []models.ListIndex{1, 2, 4}
	if len(state.SkippedIndices) != len(want) {
		t.Fatalf("Expected %v, got %v", want, state.SkippedIndices)
	}
	for i, idx := range want {
		if state.SkippedIndices[i] != idx {
			t.Errorf("SkippedIndices[%d] = %d, want %d", i, state.SkippedIndices[i], idx)
		}
	}
}

func TestIsAllAnsweredCountsSkips(t *testing.T) {
	state := NewConversationState("user1", time.Now())
	state.TotalQuestions = 3

	state.MarkAnswered(0, models.Answer{Text: "a"})
	state.MarkAnswered(2, models.Answer{Text: "b"})
	if state.IsAllAnswered() {
		t.Error("2 of 3 processed should not be all answered")
	}

	state.MarkSkipped(1)
	if !state.IsAllAnswered() {
		t.Error("answered + skipped covering all questions should be all answered")
	}
}

func TestProgressPercentExcludesSkips(t *testing.T) {
	state := NewConversationState("user1", time.Now())
	state.TotalQuestions = 4

	state.MarkAnswered(0, models.Answer{Text: "a"})
	state.MarkAnswered(1, models.Answer{Text: "b"})
	state.MarkSkipped(2)

	if got := state.ProgressPercent(); got != 50 {
		t.Errorf("ProgressPercent = %d, want 50 (skips excluded)", got)
	}

	empty := NewConversationState("user2", time.Now())
	if got := empty.ProgressPercent(); got != 0 {
		t.Errorf("ProgressPercent with no questions = %d, want 0", got)
	}
}

func TestClearSurveyScopedKeepsSession(t *testing.T) {
	now := time.Now()
	state := NewConversationState("user1", now)
	state.SurveyID = "s1"
	state.ResponseID = "r1"
	state.TotalQuestions = 3
	state.QuestionIndex = 2
	state.RecordVisited(10)
	state.MarkAnswered(0, models.Answer{Text: "a"})
	state.MarkSkipped(1)

	state.ClearSurveyScoped()

	if state.SurveyID != "" || state.ResponseID != "" || state.QuestionIndex != 0 || state.TotalQuestions != 0 {
		t.Error("Survey-scoped scalars should be cleared")
	}
	if state.VisitedQuestions != nil || state.AnsweredIndices != nil || state.SkippedIndices != nil || state.CachedAnswers != nil {
		t.Error("Survey-scoped collections should be cleared")
	}
	if state.UserID != "user1" || state.CreatedAt != now {
		t.Error("Session identity should survive clearing")
	}
}

func TestCloneIsDeep(t *testing.T) {
	state := NewConversationState("user1", time.Now())
	state.TotalQuestions = 3
	state.RecordVisited(5)
	state.MarkAnswered(0, models.Answer{Text: "a"})
	state.MarkSkipped(1)

	cp := state.Clone()
	cp.RecordVisited(6)
	cp.MarkAnswered(2, models.Answer{Text: "c"})
	cp.SkippedIndices[0] = 99

	if state.HasVisited(6) {
		t.Error("Mutating clone's visited list should not affect original")
	}
	if state.AnsweredIndices[2] {
		t.Error("Mutating clone's answered map should not affect original")
	}
	if state.SkippedIndices[0] == 99 {
		t.Error("Mutating clone's skipped list should not affect original")
	}

	var nilState *ConversationState
	if nilState.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
