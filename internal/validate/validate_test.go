package validate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func assertValid(t *testing.T, q *models.Question, a models.Answer) {
	t.Helper()
	if err := Answer(q, a); err != nil {
		t.Errorf("Expected valid answer, got %v", err)
	}
}

func assertInvalid(t *testing.T, q *models.Question, a models.Answer, wantSubstr string) {
	t.Helper()
	err := Answer(q, a)
	if err == nil {
		t.Errorf("Expected rejection containing %q, got nil", wantSubstr)
		return
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *ValidationError, got %T: %v", err, err)
		return
	}
	if wantSubstr != "" && !strings.Contains(verr.Reason, wantSubstr) {
		t.Errorf("Reason %q does not contain %q", verr.Reason, wantSubstr)
	}
}

func TestValidateText(t *testing.T) {
	required := &models.Question{Type: models.QuestionTypeText, Required: true}
	optional := &models.Question{Type: models.QuestionTypeText}

	assertValid(t, required, models.Answer{Text: "hello"})
	assertInvalid(t, required, models.Answer{Text: "   "}, "required")
	assertValid(t, optional, models.Answer{})

	long := strings.Repeat("a", models.MaxTextAnswerLength+1)
	assertInvalid(t, required, models.Answer{Text: long}, "too long")
	assertValid(t, required, models.Answer{Text: strings.Repeat("a", models.MaxTextAnswerLength)})

	// A location payload on a text question is a shape mismatch.
	assertInvalid(t, required, models.Answer{Location: &models.Location{Latitude: 1, Longitude: 1}}, "Invalid answer format")
}

func TestValidateSingleChoice(t *testing.T) {
	q := &models.Question{
		Type:     models.QuestionTypeSingleChoice,
		Required: true,
		Options:  []string{"Red", "Green", "Blue"},
	}

	assertValid(t, q, models.Answer{Text: "Green"})
	assertInvalid(t, q, models.Answer{Text: "Purple"}, "not a valid option")
	assertInvalid(t, q, models.Answer{}, "required")
	assertInvalid(t, q, models.Answer{Selections: []string{"Red", "Blue"}}, "Invalid answer format")
	assertValid(t, q, models.Answer{Selections: []string{"Blue"}})
}

func TestValidateMultipleChoice(t *testing.T) {
	q := &models.Question{
		Type:     models.QuestionTypeMultipleChoice,
		Required: true,
		Options:  []string{"Mon", "Tue", "Wed"},
	}

	assertValid(t, q, models.Answer{Selections: []string{"Mon", "Wed"}})
	assertValid(t, q, models.Answer{Text: "Mon, Tue"})
	assertInvalid(t, q, models.Answer{Text: "Mon, Fri"}, "not a valid option")
	assertInvalid(t, q, models.Answer{}, "at least one option")
}

func TestValidateRatingDefaultBounds(t *testing.T) {
	q := &models.Question{Type: models.QuestionTypeRating, Required: true}

	assertValid(t, q, models.Answer{Text: "1"})
	assertValid(t, q, models.Answer{Text: "5"})
	assertInvalid(t, q, models.Answer{Text: "0"}, "between 1 and 5")
	assertInvalid(t, q, models.Answer{Text: "6"}, "between 1 and 5")
	assertInvalid(t, q, models.Answer{Text: "great"}, "between 1 and 5")
}

func TestValidateRatingCustomBounds(t *testing.T) {
	min, max := 1, 10
	q := &models.Question{
		Type:      models.QuestionTypeRating,
		Required:  true,
		RatingMin: &min,
		RatingMax: &max,
	}

	assertValid(t, q, models.Answer{Text: "7"})
	assertValid(t, q, models.Answer{Text: "10"})
	assertInvalid(t, q, models.Answer{Text: "11"}, "between 1 and 10")
}

func TestValidateNumber(t *testing.T) {
	min, max := 0.0, 100.0
	q := &models.Question{
		Type:     models.QuestionTypeNumber,
		Required: true,
		MinValue: &min,
		MaxValue: &max,
	}

	assertValid(t, q, models.Answer{Text: "42"})
	assertValid(t, q, models.Answer{Text: "3.5"})
	// Decimal comma input is normalized before parsing.
	assertValid(t, q, models.Answer{Text: "3,5"})
	assertInvalid(t, q, models.Answer{Text: "-1"}, "at least 0")
	assertInvalid(t, q, models.Answer{Text: "101"}, "at most 100")
	assertInvalid(t, q, models.Answer{Text: "abc"}, "Invalid answer format")
}

func TestValidateDate(t *testing.T) {
	minDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	q := &models.Question{
		Type:     models.QuestionTypeDate,
		Required: true,
		MinDate:  &minDate,
		MaxDate:  &maxDate,
	}

	assertValid(t, q, models.Answer{Text: "15.06.2025"})
	assertValid(t, q, models.Answer{Text: "2025-06-15"})
	// Bounds are inclusive at both ends.
	assertValid(t, q, models.Answer{Text: "01.01.2025"})
	assertValid(t, q, models.Answer{Text: "31.12.2025"})
	assertInvalid(t, q, models.Answer{Text: "31.12.2024"}, "on or after")
	assertInvalid(t, q, models.Answer{Text: "01.01.2026"}, "on or before")
	assertInvalid(t, q, models.Answer{Text: "June 15th"}, "DD.MM.YYYY")
}

func TestValidateLocation(t *testing.T) {
	q := &models.Question{Type: models.QuestionTypeLocation, Required: true}

	assertValid(t, q, models.Answer{Location: &models.Location{Latitude: 43.65, Longitude: -79.38}})
	assertValid(t, q, models.Answer{Location: &models.Location{Latitude: 90, Longitude: 180}})
	assertInvalid(t, q, models.Answer{Location: &models.Location{Latitude: 91, Longitude: 0}}, "Invalid location")
	assertInvalid(t, q, models.Answer{Location: &models.Location{Latitude: 0, Longitude: -181}}, "Invalid location")
	assertInvalid(t, q, models.Answer{}, "share your location")
}

func TestValidateOptionalEmptyAnswers(t *testing.T) {
	for _, qt := range []models.QuestionType{
		models.QuestionTypeText,
		models.QuestionTypeSingleChoice,
		models.QuestionTypeMultipleChoice,
		models.QuestionTypeRating,
		models.QuestionTypeNumber,
		models.QuestionTypeDate,
		models.QuestionTypeLocation,
	} {
		q := &models.Question{Type: qt, Options: []string{"A"}}
		if err := Answer(q, models.Answer{}); err != nil {
			t.Errorf("Empty answer to optional %s question should pass, got %v", qt, err)
		}
	}
}

func TestValidateUnknownType(t *testing.T) {
	q := &models.Question{Type: "telepathy"}
	assertInvalid(t, q, models.Answer{Text: "hm"}, "Invalid answer format")
}
