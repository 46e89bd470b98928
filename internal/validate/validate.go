// Package validate checks inbound answers against question constraints.
//
// Validation is pure: it never touches session state, and a payload that
// does not match the question's expected shape yields a generic reason
// instead of propagating a parse fault.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// ValidationError describes why an answer was rejected. The Reason is
// user-facing and is sent back verbatim as the re-prompt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Generic reasons shared across question types.
const (
	reasonRequired      = "This question is required. Please provide an answer."
	reasonInvalidFormat = "Invalid answer format. Please try again."
)

// Answer validates a payload against a question. A nil return means the
// answer is acceptable; otherwise the *ValidationError carries the
// user-facing reason.
func Answer(q *models.Question, a models.Answer) error {
	switch q.Type {
	case models.QuestionTypeText:
		return validateText(q, a)
	case models.QuestionTypeSingleChoice:
		return validateSingleChoice(q, a)
	case models.QuestionTypeMultipleChoice:
		return validateMultipleChoice(q, a)
	case models.QuestionTypeRating:
		return validateRating(q, a)
	case models.QuestionTypeNumber:
		return validateNumber(q, a)
	case models.QuestionTypeDate:
		return validateDate(q, a)
	case models.QuestionTypeLocation:
		return validateLocation(q, a)
	default:
		return invalid(reasonInvalidFormat)
	}
}

func validateText(q *models.Question, a models.Answer) error {
	// Text answers arrive in the Text field; any other shape is malformed.
	if a.Location != nil || len(a.Selections) > 0 {
		return invalid(reasonInvalidFormat)
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		if q.Required {
			return invalid(reasonRequired)
		}
		return nil
	}
	if len(text) > models.MaxTextAnswerLength {
		return invalid("Answer is too long (maximum %d characters).", models.MaxTextAnswerLength)
	}
	return nil
}

func validateSingleChoice(q *models.Question, a models.Answer) error {
	value := strings.TrimSpace(a.Text)
	if value == "" && len(a.Selections) == 1 {
		value = a.Selections[0]
	} else if len(a.Selections) > 1 {
		return invalid(reasonInvalidFormat)
	}
	if value == "" {
		if q.Required {
			return invalid(reasonRequired)
		}
		return nil
	}
	if !q.HasOption(value) {
		return invalid("%q is not a valid option. Please choose one of the listed options.", value)
	}
	return nil
}

func validateMultipleChoice(q *models.Question, a models.Answer) error {
	selections := a.Selections
	if len(selections) == 0 && strings.TrimSpace(a.Text) != "" {
		// Transports without native multi-select deliver comma-separated text.
		for _, part := range strings.Split(a.Text, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				selections = append(selections, trimmed)
			}
		}
	}
	if len(selections) == 0 {
		if q.Required {
			return invalid("Please select at least one option.")
		}
		return nil
	}
	for _, sel := range selections {
		if !q.HasOption(sel) {
			return invalid("%q is not a valid option. Please choose from the listed options.", sel)
		}
	}
	return nil
}

func validateRating(q *models.Question, a models.Answer) error {
	min, max := q.RatingBounds()
	text := strings.TrimSpace(a.Text)
	if text == "" {
		if q.Required {
			return invalid(reasonRequired)
		}
		return nil
	}
	rating, err := strconv.Atoi(text)
	if err != nil {
		return invalid("Please enter a rating between %d and %d.", min, max)
	}
	if rating < min || rating > max {
		return invalid("Please enter a rating between %d and %d.", min, max)
	}
	return nil
}

func validateNumber(q *models.Question, a models.Answer) error {
	text := strings.TrimSpace(strings.ReplaceAll(a.Text, ",", "."))
	if text == "" {
		if q.Required {
			return invalid(reasonRequired)
		}
		return nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return invalid(reasonInvalidFormat)
	}
	if q.MinValue != nil && value < *q.MinValue {
		return invalid("Value must be at least %s.", formatNumber(*q.MinValue))
	}
	if q.MaxValue != nil && value > *q.MaxValue {
		return invalid("Value must be at most %s.", formatNumber(*q.MaxValue))
	}
	return nil
}

func validateDate(q *models.Question, a models.Answer) error {
	text := strings.TrimSpace(a.Text)
	if text == "" {
		if q.Required {
			return invalid(reasonRequired)
		}
		return nil
	}
	date, err := parseDate(text)
	if err != nil {
		return invalid("Invalid date format. Please use DD.MM.YYYY.")
	}
	// Bounds are inclusive: a value exactly equal to either bound is valid.
	if q.MinDate != nil && date.Before(truncateToDay(*q.MinDate)) {
		return invalid("Date must be on or after %s.", q.MinDate.Format(models.UserDateFormat))
	}
	if q.MaxDate != nil && date.After(truncateToDay(*q.MaxDate)) {
		return invalid("Date must be on or before %s.", q.MaxDate.Format(models.UserDateFormat))
	}
	return nil
}

func validateLocation(q *models.Question, a models.Answer) error {
	if a.Location == nil {
		if q.Required {
			return invalid("Please share your location to answer this question.")
		}
		return nil
	}
	loc := a.Location
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return invalid("Invalid location coordinates. Please share your location again.")
	}
	return nil
}

// parseDate accepts the user-facing DD.MM.YYYY layout and the ISO layout.
func parseDate(text string) (time.Time, error) {
	if t, err := time.Parse(models.UserDateFormat, text); err == nil {
		return t, nil
	}
	return time.Parse(models.WireDateFormat, text)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// formatNumber renders a bound without a trailing ".0" for whole numbers.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
