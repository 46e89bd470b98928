// Package flow orchestrates survey dialogues: it resolves branching
// next-step determinants and coordinates the per-answer cycle of
// validate, persist, resolve, and render.
package flow

import (
	"context"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// QuestionCatalog serves the ordered question list for a survey. The
// catalog lives upstream and may be edited independently of in-flight
// sessions, so callers must tolerate edits landing between fetch and use.
type QuestionCatalog interface {
	Questions(ctx context.Context, surveyID string) ([]models.Question, error)
}

// AnswerStore persists submitted answers and completion upstream. The
// engine never stores answers durably itself.
type AnswerStore interface {
	Submit(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) error
	Complete(ctx context.Context, responseID string) error
}

// FlowAuthority computes the next-step determinant for an answer. The
// branching graph is owned remotely so that survey authors can edit it
// while responses are in flight.
type FlowAuthority interface {
	NextStep(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) (models.NextStep, error)
}

// MessageSender sends a text message to a chat. Satisfied by the
// messaging package's Service implementations.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// AttachmentSender delivers a question's media items to a chat.
// Satisfied by delivery.Sender.
type AttachmentSender interface {
	SendAttachments(ctx context.Context, chatID string, question *models.Question) error
}
