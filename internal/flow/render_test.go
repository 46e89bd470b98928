package flow

import (
	"strings"
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func TestRenderQuestionHeader(t *testing.T) {
	q := &models.Question{ID: 1, Text: "How are you?", Type: models.QuestionTypeText, Required: true}
	out := RenderQuestion(q, 2, 5)

	if !strings.HasPrefix(out, "Question 2 of 5") {
		t.Errorf("Expected header prefix, got %q", out)
	}
	if !strings.Contains(out, "How are you?") {
		t.Errorf("Expected question text, got %q", out)
	}
	if strings.Contains(out, "/skip") {
		t.Errorf("Required question must not advertise /skip, got %q", out)
	}
}

func TestRenderQuestionOptionalHint(t *testing.T) {
	q := &models.Question{ID: 1, Text: "Anything else?", Type: models.QuestionTypeText}
	out := RenderQuestion(q, 1, 1)
	if !strings.Contains(out, "/skip") {
		t.Errorf("Optional question should advertise /skip, got %q", out)
	}
}

func TestRenderQuestionChoices(t *testing.T) {
	q := &models.Question{
		ID: 1, Text: "Pick a color", Type: models.QuestionTypeSingleChoice, Required: true,
		Options: []string{"Red", "Green"},
	}
	out := RenderQuestion(q, 1, 3)
	if !strings.Contains(out, "1. Red") || !strings.Contains(out, "2. Green") {
		t.Errorf("Expected numbered options, got %q", out)
	}

	q.Type = models.QuestionTypeMultipleChoice
	out = RenderQuestion(q, 1, 3)
	if !strings.Contains(out, "Select all that apply") {
		t.Errorf("Multiple choice should explain multi-select, got %q", out)
	}
}

func TestRenderQuestionTypeHints(t *testing.T) {
	min, max := 1, 10
	rating := &models.Question{ID: 1, Text: "Rate", Type: models.QuestionTypeRating, Required: true, RatingMin: &min, RatingMax: &max}
	if out := RenderQuestion(rating, 1, 1); !strings.Contains(out, "from 1 to 10") {
		t.Errorf("Rating hint should show custom bounds, got %q", out)
	}

	date := &models.Question{ID: 2, Text: "When?", Type: models.QuestionTypeDate, Required: true}
	if out := RenderQuestion(date, 1, 1); !strings.Contains(out, "31.12.2025") {
		t.Errorf("Date hint should show the expected layout, got %q", out)
	}

	loc := &models.Question{ID: 3, Text: "Where?", Type: models.QuestionTypeLocation, Required: true}
	if out := RenderQuestion(loc, 1, 1); !strings.Contains(out, "location") {
		t.Errorf("Location hint missing, got %q", out)
	}
}

func TestRenderCompletion(t *testing.T) {
	out := RenderCompletion(5, 0, 5)
	if !strings.Contains(out, "5 of 5") || strings.Contains(out, "skipped") {
		t.Errorf("Unexpected summary without skips: %q", out)
	}

	out = RenderCompletion(3, 2, 5)
	if !strings.Contains(out, "3 of 5") || !strings.Contains(out, "2 skipped") {
		t.Errorf("Unexpected summary with skips: %q", out)
	}
}
