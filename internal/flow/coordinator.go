package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/session"
	"github.com/BTreeMap/SurveyPipe/internal/validate"
	"github.com/google/uuid"
)

// Coordinator runs the end-to-end answer cycle for survey dialogues:
// load session, validate, persist, resolve the next step, reconcile the
// session, and render the next question or the completion summary.
//
// The coordinator itself is stateless apart from the per-response question
// snapshot cache; per-user write serialization comes from the session
// store and the dispatcher's per-user queues.
type Coordinator struct {
	store    session.Store
	resolver *Resolver
	catalog  QuestionCatalog
	answers  AnswerStore
	delivery AttachmentSender
	msg      MessageSender

	// cache holds the ordered question snapshot per open response. The
	// catalog may be edited while a response is in flight; the snapshot
	// keeps list indices stable for the session's lifetime.
	mu    sync.RWMutex
	cache map[string][]models.Question
}

// NewCoordinator creates a Coordinator with its collaborators.
func NewCoordinator(store session.Store, resolver *Resolver, catalog QuestionCatalog, answers AnswerStore, delivery AttachmentSender, msg MessageSender) *Coordinator {
	return &Coordinator{
		store:    store,
		resolver: resolver,
		catalog:  catalog,
		answers:  answers,
		delivery: delivery,
		msg:      msg,
		cache:    make(map[string][]models.Question),
	}
}

// StartSurvey opens a new response for the user and renders the first
// question. An empty or missing catalog aborts the start without touching
// any existing session.
func (c *Coordinator) StartSurvey(ctx context.Context, userID, chatID, surveyID string) error {
	return c.guard(ctx, chatID, func() error {
		questions, err := c.catalog.Questions(ctx, surveyID)
		if err != nil {
			slog.Error("flow.Coordinator.StartSurvey: catalog fetch failed", "error", err, "surveyID", surveyID, "userID", userID)
			c.notify(ctx, chatID, noticeTransientError)
			return err
		}
		if len(questions) == 0 {
			c.notify(ctx, chatID, "This survey has no questions yet. Please try again later.")
			return models.ErrEmptyCatalog
		}

		ordered := SortByPosition(questions)
		responseID := uuid.NewString()
		if err := c.store.StartSurvey(ctx, userID, surveyID, responseID, len(ordered)); err != nil {
			slog.Error("flow.Coordinator.StartSurvey: session start failed", "error", err, "userID", userID, "surveyID", surveyID)
			c.notify(ctx, chatID, noticeTransientError)
			return err
		}

		c.mu.Lock()
		c.cache[responseID] = ordered
		c.mu.Unlock()

		slog.Info("flow.Coordinator.StartSurvey: survey started", "userID", userID, "surveyID", surveyID, "responseID", responseID, "questions", len(ordered))
		return c.renderQuestion(ctx, userID, chatID, &ordered[0], 1, len(ordered))
	})
}

// HandleAnswer processes one inbound answer for the user's current
// question, following the per-answer algorithm end to end.
func (c *Coordinator) HandleAnswer(ctx context.Context, userID, chatID string, answer models.Answer) error {
	return c.guard(ctx, chatID, func() error {
		// Step 1: a missing, expired, or response-less session means there is
		// nothing to answer; report and leave everything untouched.
		state, err := c.store.GetState(ctx, userID)
		if err != nil {
			return err
		}
		if state == nil || !state.HasActiveResponse() {
			c.notify(ctx, chatID, noticeNoActiveSurvey)
			return nil
		}

		questions, err := c.questionsFor(ctx, state)
		if err != nil {
			c.notify(ctx, chatID, noticeTransientError)
			return err
		}
		idx := int(state.QuestionIndex)
		if idx < 0 || idx >= len(questions) {
			slog.Error("flow.Coordinator.HandleAnswer: question index out of range", "userID", userID, "index", idx, "questions", len(questions))
			c.notify(ctx, chatID, noticeTransientError)
			return models.ErrIndexOutOfRange
		}
		question := questions[idx]

		// Step 2: cycle guard. A question already in the visited list is
		// rejected outright; this also masks stale-index races.
		if state.HasVisited(question.ID) {
			slog.Warn("flow.Coordinator.HandleAnswer: question already visited", "userID", userID, "questionID", question.ID)
			c.notify(ctx, chatID, noticeAlreadyAnswered)
			return fmt.Errorf("question %d: %w", question.ID, models.ErrQuestionVisited)
		}

		// Step 3: validation failures re-prompt the user with the reason and
		// leave the session unchanged.
		if err := validate.Answer(&question, answer); err != nil {
			var verr *validate.ValidationError
			if errors.As(err, &verr) {
				slog.Debug("flow.Coordinator.HandleAnswer: answer rejected", "userID", userID, "questionID", question.ID, "reason", verr.Reason)
				c.notify(ctx, chatID, verr.Reason)
				return nil
			}
			return err
		}

		// Step 4: persist upstream first; cache locally only after success so
		// a failure never leaves the session partially mutated.
		if err := c.answers.Submit(ctx, state.ResponseID, question.ID, answer); err != nil {
			slog.Error("flow.Coordinator.HandleAnswer: answer submission failed", "error", err, "userID", userID, "responseID", state.ResponseID, "questionID", question.ID)
			c.notify(ctx, chatID, noticeTransientError)
			return err
		}
		if err := c.store.AnswerQuestion(ctx, userID, state.QuestionIndex, answer); err != nil {
			return err
		}
		if err := c.store.RecordVisitedQuestion(ctx, userID, question.ID); err != nil {
			return err
		}
		if err := c.store.Transition(ctx, userID, session.StateInSurvey); err != nil {
			return err
		}

		// Steps 5-8 are shared with skip handling.
		return c.advance(ctx, userID, chatID, state, questions, &question, answer)
	})
}

// HandleSkip processes a skip request for the current question. Skips are
// legal only for optional questions; an accepted skip follows the same
// next-step resolution as a normal answer with an empty payload.
func (c *Coordinator) HandleSkip(ctx context.Context, userID, chatID string) error {
	return c.guard(ctx, chatID, func() error {
		state, err := c.store.GetState(ctx, userID)
		if err != nil {
			return err
		}
		if state == nil || !state.HasActiveResponse() {
			c.notify(ctx, chatID, noticeNoActiveSurvey)
			return nil
		}

		questions, err := c.questionsFor(ctx, state)
		if err != nil {
			c.notify(ctx, chatID, noticeTransientError)
			return err
		}
		idx := int(state.QuestionIndex)
		if idx < 0 || idx >= len(questions) {
			c.notify(ctx, chatID, noticeTransientError)
			return models.ErrIndexOutOfRange
		}
		question := questions[idx]

		if question.Required {
			c.notify(ctx, chatID, noticeCannotSkip)
			return nil
		}
		if state.HasVisited(question.ID) {
			c.notify(ctx, chatID, noticeAlreadyAnswered)
			return fmt.Errorf("question %d: %w", question.ID, models.ErrQuestionVisited)
		}

		if err := c.store.MarkQuestionSkipped(ctx, userID, state.QuestionIndex); err != nil {
			return err
		}
		// Skipped questions count as visited so branching can never route
		// the dialogue back onto them.
		if err := c.store.RecordVisitedQuestion(ctx, userID, question.ID); err != nil {
			return err
		}
		if err := c.store.Transition(ctx, userID, session.StateInSurvey); err != nil {
			return err
		}

		slog.Info("flow.Coordinator.HandleSkip: question skipped", "userID", userID, "questionID", question.ID, "index", idx)
		return c.advance(ctx, userID, chatID, state, questions, &question, models.Answer{})
	})
}

// CancelSurvey transitions the session to CANCELLED and clears its
// survey-scoped fields. Stale answers arriving afterwards are rejected as
// "no active survey".
func (c *Coordinator) CancelSurvey(ctx context.Context, userID, chatID string) error {
	return c.guard(ctx, chatID, func() error {
		state, err := c.store.GetState(ctx, userID)
		if err != nil {
			return err
		}
		if state == nil || !state.HasActiveResponse() {
			c.notify(ctx, chatID, noticeNoActiveSurvey)
			return nil
		}

		responseID := state.ResponseID
		if err := c.store.CancelSurvey(ctx, userID); err != nil {
			return err
		}
		c.dropSnapshot(responseID)

		slog.Info("flow.Coordinator.CancelSurvey: survey cancelled", "userID", userID, "responseID", responseID)
		c.notify(ctx, chatID, noticeCancelled)
		return nil
	})
}

// advance runs steps 5-8 of the per-answer algorithm: resolve the next
// step and reconcile, complete, or surface the failure.
func (c *Coordinator) advance(ctx context.Context, userID, chatID string, state *session.ConversationState, questions []models.Question, current *models.Question, answer models.Answer) error {
	outcome, err := c.resolver.NextQuestion(ctx, state.ResponseID, state.SurveyID, questions, current.ID, answer)
	if err != nil {
		// Step 8: transient failure. The answer is already committed; the
		// session stays intact so the next inbound event can retry.
		slog.Error("flow.Coordinator.advance: next-step resolution failed", "error", err, "userID", userID, "responseID", state.ResponseID, "questionID", current.ID)
		c.notify(ctx, chatID, noticeTransientError)
		return err
	}

	if outcome.Completed {
		return c.complete(ctx, userID, chatID, state)
	}

	next := outcome.Next

	// Step 7: resolve the next question's position in the cached ordered
	// list by its stable id. Skipping this reconciliation is the classic
	// stale-index bug: the index would silently point at the wrong cached
	// question on the next answer.
	number := int(state.QuestionIndex) + 1
	if pos := positionOf(questions, next.ID); pos >= 0 {
		if err := c.store.SetQuestionIndex(ctx, userID, models.ListIndex(pos)); err != nil {
			return err
		}
		number = pos + 1
	} else {
		slog.Warn("flow.Coordinator.advance: next question missing from cached list, keeping index", "userID", userID, "responseID", state.ResponseID, "nextID", next.ID)
	}

	return c.renderQuestion(ctx, userID, chatID, next, number, state.TotalQuestions)
}

// complete marks the response complete upstream, then transitions the
// session and renders the completion summary.
func (c *Coordinator) complete(ctx context.Context, userID, chatID string, state *session.ConversationState) error {
	if err := c.answers.Complete(ctx, state.ResponseID); err != nil {
		slog.Error("flow.Coordinator.complete: completion submission failed", "error", err, "userID", userID, "responseID", state.ResponseID)
		c.notify(ctx, chatID, noticeTransientError)
		return err
	}

	// Counts must be read before CompleteSurvey clears survey-scoped fields.
	answered, skipped, total := 0, 0, state.TotalQuestions
	if fresh, err := c.store.GetState(ctx, userID); err == nil && fresh != nil {
		answered = len(fresh.AnsweredIndices)
		skipped = len(fresh.SkippedIndices)
		total = fresh.TotalQuestions
	}

	if err := c.store.CompleteSurvey(ctx, userID); err != nil {
		return err
	}
	c.dropSnapshot(state.ResponseID)

	slog.Info("flow.Coordinator.complete: survey completed", "userID", userID, "responseID", state.ResponseID, "answered", answered, "skipped", skipped, "total", total)
	c.notify(ctx, chatID, RenderCompletion(answered, skipped, total))
	return nil
}

// renderQuestion delivers a question to the chat: attachments first, then
// the formatted text, then the state transition to ANSWERING_QUESTION.
func (c *Coordinator) renderQuestion(ctx context.Context, userID, chatID string, q *models.Question, number, total int) error {
	if c.delivery != nil && len(q.Attachments) > 0 {
		if err := c.delivery.SendAttachments(ctx, chatID, q); err != nil {
			// Attachment failure degrades to text-only rather than stalling
			// the dialogue.
			slog.Warn("flow.Coordinator.renderQuestion: attachment delivery failed", "error", err, "chatID", chatID, "questionID", q.ID)
		}
	}
	if err := c.msg.SendMessage(ctx, chatID, RenderQuestion(q, number, total)); err != nil {
		slog.Error("flow.Coordinator.renderQuestion: failed to send question", "error", err, "chatID", chatID, "questionID", q.ID)
		return err
	}
	return c.store.Transition(ctx, userID, session.StateAnsweringQuestion)
}

// questionsFor returns the response's question snapshot, fetching and
// caching it when absent (e.g. after a process restart with a persistent
// session store).
func (c *Coordinator) questionsFor(ctx context.Context, state *session.ConversationState) ([]models.Question, error) {
	c.mu.RLock()
	cached, ok := c.cache[state.ResponseID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	questions, err := c.catalog.Questions(ctx, state.SurveyID)
	if err != nil {
		return nil, err
	}
	ordered := SortByPosition(questions)
	c.mu.Lock()
	c.cache[state.ResponseID] = ordered
	c.mu.Unlock()
	slog.Debug("flow.Coordinator.questionsFor: snapshot rebuilt", "responseID", state.ResponseID, "questions", len(ordered))
	return ordered, nil
}

func (c *Coordinator) dropSnapshot(responseID string) {
	c.mu.Lock()
	delete(c.cache, responseID)
	c.mu.Unlock()
}

// notify sends a user-facing message, logging rather than failing when the
// channel is unavailable.
func (c *Coordinator) notify(ctx context.Context, chatID, body string) {
	if err := c.msg.SendMessage(ctx, chatID, body); err != nil {
		slog.Error("flow.Coordinator.notify: failed to send message", "error", err, "chatID", chatID)
	}
}

// guard converts unexpected panics at the coordinator boundary into a
// generic user-visible failure without corrupting stored state.
func (c *Coordinator) guard(ctx context.Context, chatID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("flow.Coordinator: recovered from panic", "panic", r, "chatID", chatID)
			c.notify(ctx, chatID, noticeTransientError)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}

func positionOf(questions []models.Question, id models.QuestionID) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}
