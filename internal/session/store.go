package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// Store provides concurrent keyed access to conversation state with
// survey lifecycle operations. Implementations serialize compound
// read-modify-write sequences per user; distinct users never contend.
type Store interface {
	// GetState retrieves the session for a user, or nil if absent or expired.
	GetState(ctx context.Context, userID string) (*ConversationState, error)

	// SetState overwrites the session and stamps LastActivityAt.
	SetState(ctx context.Context, state *ConversationState) error

	// ClearState discards the whole session record.
	ClearState(ctx context.Context, userID string) error

	// HasActiveState reports whether a non-expired session exists.
	HasActiveState(ctx context.Context, userID string) (bool, error)

	// StartSurvey opens a survey response and resets the question index to 0.
	StartSurvey(ctx context.Context, userID, surveyID, responseID string, totalQuestions int) error

	// AnswerQuestion caches the payload for an index and marks it answered.
	AnswerQuestion(ctx context.Context, userID string, index models.ListIndex, answer models.Answer) error

	// SkipQuestion advances past the current question if it is not required.
	SkipQuestion(ctx context.Context, userID string, required bool) error

	// NextQuestion advances the question index, bound-checked against total.
	NextQuestion(ctx context.Context, userID string) (models.ListIndex, error)

	// PreviousQuestion moves the question index back, bound-checked at zero.
	PreviousQuestion(ctx context.Context, userID string) (models.ListIndex, error)

	// SetQuestionIndex overwrites the question index after branch reconciliation.
	SetQuestionIndex(ctx context.Context, userID string, index models.ListIndex) error

	// Transition pushes the current state onto the history stack and moves
	// the session to the given state.
	Transition(ctx context.Context, userID string, to StateType) error

	// CompleteSurvey transitions to RESPONSE_COMPLETE and clears survey-scoped fields.
	CompleteSurvey(ctx context.Context, userID string) error

	// CancelSurvey transitions to CANCELLED and clears only survey-scoped fields.
	CancelSurvey(ctx context.Context, userID string) error

	// RecordVisitedQuestion records a stable question id; duplicates are ignored.
	RecordVisitedQuestion(ctx context.Context, userID string, id models.QuestionID) error

	// MarkQuestionSkipped records an index as skipped, sorted and unique.
	MarkQuestionSkipped(ctx context.Context, userID string, index models.ListIndex) error
}

// backend abstracts raw session persistence. The surrounding store supplies
// per-user locking and the lifecycle operations, so backends only load,
// save, and delete whole records.
type backend interface {
	load(ctx context.Context, userID string) (*ConversationState, error)
	save(ctx context.Context, state *ConversationState) error
	delete(ctx context.Context, userID string) error
}

// userLocks hands out one mutex per user id so compound operations on the
// same user are serialized without cross-user contention.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}

// store implements Store over any backend.
type store struct {
	b     backend
	locks *userLocks
	now   func() time.Time
}

func newStore(b backend) *store {
	return &store{b: b, locks: newUserLocks(), now: time.Now}
}

// loadAlive returns the user's session, treating expired records as absent.
func (s *store) loadAlive(ctx context.Context, userID string) (*ConversationState, error) {
	state, err := s.b.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	if state.IsExpired(s.now()) {
		slog.Debug("session.Store: ignoring expired session", "userID", userID, "lastActivity", state.LastActivityAt)
		return nil, nil
	}
	return state, nil
}

// update runs fn on the user's live session under the per-user lock and
// persists the result. Absent or expired sessions yield ErrNoActiveSurvey.
func (s *store) update(ctx context.Context, userID string, fn func(*ConversationState) error) error {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.loadAlive(ctx, userID)
	if err != nil {
		return err
	}
	if state == nil {
		return models.ErrNoActiveSurvey
	}
	if err := fn(state); err != nil {
		return err
	}
	state.LastActivityAt = s.now()
	return s.b.save(ctx, state)
}

func (s *store) GetState(ctx context.Context, userID string) (*ConversationState, error) {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()
	state, err := s.loadAlive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

func (s *store) SetState(ctx context.Context, state *ConversationState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("session state requires a user id")
	}
	mu := s.locks.get(state.UserID)
	mu.Lock()
	defer mu.Unlock()
	cp := state.Clone()
	cp.LastActivityAt = s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.LastActivityAt
	}
	return s.b.save(ctx, cp)
}

func (s *store) ClearState(ctx context.Context, userID string) error {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.b.delete(ctx, userID)
}

func (s *store) HasActiveState(ctx context.Context, userID string) (bool, error) {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()
	state, err := s.loadAlive(ctx, userID)
	if err != nil {
		return false, err
	}
	return state != nil, nil
}

func (s *store) StartSurvey(ctx context.Context, userID, surveyID, responseID string, totalQuestions int) error {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	state, err := s.loadAlive(ctx, userID)
	if err != nil {
		return err
	}
	if state == nil {
		state = NewConversationState(userID, now)
	}
	state.ClearSurveyScoped()
	state.SurveyID = surveyID
	state.ResponseID = responseID
	state.QuestionIndex = 0
	state.TotalQuestions = totalQuestions
	state.PushState(StateInSurvey)
	state.LastActivityAt = now

	slog.Info("session.Store: survey started", "userID", userID, "surveyID", surveyID, "responseID", responseID, "totalQuestions", totalQuestions)
	return s.b.save(ctx, state)
}

func (s *store) AnswerQuestion(ctx context.Context, userID string, index models.ListIndex, answer models.Answer) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		if int(index) < 0 || int(index) >= state.TotalQuestions {
			return models.ErrIndexOutOfRange
		}
		return state.MarkAnswered(index, answer)
	})
}

func (s *store) SkipQuestion(ctx context.Context, userID string, required bool) error {
	if required {
		return models.ErrSkipRequired
	}
	return s.update(ctx, userID, func(state *ConversationState) error {
		if int(state.QuestionIndex)+1 < state.TotalQuestions {
			state.QuestionIndex++
		}
		return nil
	})
}

func (s *store) NextQuestion(ctx context.Context, userID string) (models.ListIndex, error) {
	var index models.ListIndex
	err := s.update(ctx, userID, func(state *ConversationState) error {
		if int(state.QuestionIndex)+1 >= state.TotalQuestions {
			return models.ErrIndexOutOfRange
		}
		state.QuestionIndex++
		index = state.QuestionIndex
		return nil
	})
	return index, err
}

func (s *store) PreviousQuestion(ctx context.Context, userID string) (models.ListIndex, error) {
	var index models.ListIndex
	err := s.update(ctx, userID, func(state *ConversationState) error {
		if state.QuestionIndex <= 0 {
			return models.ErrIndexOutOfRange
		}
		state.QuestionIndex--
		index = state.QuestionIndex
		return nil
	})
	return index, err
}

func (s *store) SetQuestionIndex(ctx context.Context, userID string, index models.ListIndex) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		if int(index) < 0 || int(index) >= state.TotalQuestions {
			return models.ErrIndexOutOfRange
		}
		state.QuestionIndex = index
		return nil
	})
}

func (s *store) Transition(ctx context.Context, userID string, to StateType) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		state.PushState(to)
		return nil
	})
}

func (s *store) CompleteSurvey(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		state.PushState(StateResponseComplete)
		state.ClearSurveyScoped()
		slog.Info("session.Store: survey completed", "userID", userID)
		return nil
	})
}

func (s *store) CancelSurvey(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		state.PushState(StateCancelled)
		state.ClearSurveyScoped()
		slog.Info("session.Store: survey cancelled", "userID", userID)
		return nil
	})
}

func (s *store) RecordVisitedQuestion(ctx context.Context, userID string, id models.QuestionID) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		state.RecordVisited(id)
		return nil
	})
}

func (s *store) MarkQuestionSkipped(ctx context.Context, userID string, index models.ListIndex) error {
	return s.update(ctx, userID, func(state *ConversationState) error {
		if int(index) < 0 || int(index) >= state.TotalQuestions {
			return models.ErrIndexOutOfRange
		}
		return state.MarkSkipped(index)
	})
}
