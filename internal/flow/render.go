package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// Rendering format constants.
const (
	// QuestionHeaderFormat prefixes every rendered question with its
	// 1-based position and the total count.
	QuestionHeaderFormat = "Question %d of %d"
	// OptionFormat is the format string for one selectable option line.
	OptionFormat = "\n%d. %s"
)

// RenderQuestion formats a question for the message channel: header,
// question text, selectable options for choice types, and a type-specific
// reply hint.
func RenderQuestion(q *models.Question, number, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, QuestionHeaderFormat, number, total)
	sb.WriteString("\n\n")
	sb.WriteString(q.Text)
	if !q.Required {
		sb.WriteString("\n(optional, send /skip to skip)")
	}

	switch q.Type {
	case models.QuestionTypeSingleChoice, models.QuestionTypeMultipleChoice:
		for i, opt := range q.Options {
			fmt.Fprintf(&sb, OptionFormat, i+1, opt)
		}
		if q.Type == models.QuestionTypeMultipleChoice {
			sb.WriteString("\n(Select all that apply, separated by commas)")
		}
	case models.QuestionTypeRating:
		min, max := q.RatingBounds()
		fmt.Fprintf(&sb, "\n(Reply with a number from %d to %d)", min, max)
	case models.QuestionTypeDate:
		sb.WriteString("\n(Reply with a date, e.g. 31.12.2025)")
	case models.QuestionTypeLocation:
		sb.WriteString("\n(Share your location to answer)")
	}
	return sb.String()
}

// RenderCompletion builds the end-of-survey summary shown to the user.
func RenderCompletion(answered, skipped, total int) string {
	if skipped > 0 {
		return fmt.Sprintf("✅ Survey complete! You answered %d of %d questions (%d skipped). Thank you for your time!", answered, total, skipped)
	}
	return fmt.Sprintf("✅ Survey complete! You answered %d of %d questions. Thank you for your time!", answered, total)
}

// User-facing notices for the coordinator.
const (
	noticeNoActiveSurvey  = "You don't have an active survey. Send /start to begin."
	noticeAlreadyAnswered = "⚠️ You've already answered this question."
	noticeCannotSkip      = "This question is required and cannot be skipped."
	noticeTransientError  = "⚠️ Something went wrong processing your answer. Please try again in a moment."
	noticeCancelled       = "Survey cancelled. Send /start whenever you want to try again."
)
