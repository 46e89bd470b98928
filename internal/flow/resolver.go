package flow

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// Outcome is the resolved next step for a session: either the next
// question to render or survey completion.
type Outcome struct {
	Completed bool
	Next      *models.Question
}

// Resolver asks the external flow authority what comes next after an
// answer and resolves the determinant against the question catalog. It
// performs no retries of its own.
type Resolver struct {
	authority FlowAuthority
	catalog   QuestionCatalog
}

// NewResolver creates a Resolver over the given authority and catalog.
func NewResolver(authority FlowAuthority, catalog QuestionCatalog) *Resolver {
	return &Resolver{authority: authority, catalog: catalog}
}

// FirstQuestion returns the catalog entry at position 0 for a survey, or
// nil for an empty or missing catalog.
func (r *Resolver) FirstQuestion(ctx context.Context, surveyID string) (*models.Question, error) {
	questions, err := r.catalog.Questions(ctx, surveyID)
	if err != nil {
		if errors.Is(err, models.ErrSurveyNotFound) {
			slog.Debug("flow.Resolver.FirstQuestion: survey not found", "surveyID", surveyID)
			return nil, nil
		}
		return nil, r.classify(err, 0, surveyID)
	}
	if len(questions) == 0 {
		return nil, nil
	}
	ordered := SortByPosition(questions)
	first := ordered[0]
	return &first, nil
}

// NextQuestion resolves the determinant for the given answer. The cached
// question list is the session's per-response snapshot; when a determinant
// names a question that was added after the snapshot was taken, the
// resolver falls back to a fresh catalog fetch so the dialogue degrades
// gracefully instead of failing.
func (r *Resolver) NextQuestion(ctx context.Context, responseID, surveyID string, questions []models.Question, currentID models.QuestionID, answer models.Answer) (Outcome, error) {
	step, err := r.authority.NextStep(ctx, responseID, currentID, answer)
	if err != nil {
		slog.Error("flow.Resolver.NextQuestion: authority call failed", "error", err, "responseID", responseID, "questionID", currentID)
		return Outcome{}, r.classify(err, currentID, surveyID)
	}
	slog.Debug("flow.Resolver.NextQuestion: determinant received", "responseID", responseID, "questionID", currentID, "action", step.Action, "nextID", step.QuestionID)

	switch step.Action {
	case models.NextStepEnd:
		return Outcome{Completed: true}, nil

	case models.NextStepGoTo:
		if q := findByID(questions, step.QuestionID); q != nil {
			return Outcome{Next: q}, nil
		}
		// The determinant names a question missing from the snapshot; the
		// graph may have been edited since the session started.
		fresh, err := r.catalog.Questions(ctx, surveyID)
		if err != nil {
			return Outcome{}, r.classify(err, step.QuestionID, surveyID)
		}
		if q := findByID(fresh, step.QuestionID); q != nil {
			slog.Warn("flow.Resolver.NextQuestion: determinant target resolved from fresh catalog", "responseID", responseID, "nextID", step.QuestionID)
			return Outcome{Next: q}, nil
		}
		return Outcome{}, &NotFoundError{QuestionID: step.QuestionID, SurveyID: surveyID}

	case models.NextStepSequential:
		ordered := SortByPosition(questions)
		for i, q := range ordered {
			if q.ID == currentID {
				if i+1 < len(ordered) {
					next := ordered[i+1]
					return Outcome{Next: &next}, nil
				}
				return Outcome{Completed: true}, nil
			}
		}
		return Outcome{}, &NotFoundError{QuestionID: currentID, SurveyID: surveyID}

	default:
		return Outcome{}, &ResolutionError{Err: errors.New("unknown next-step action " + string(step.Action))}
	}
}

// classify maps adapter errors onto the resolver's error taxonomy.
func (r *Resolver) classify(err error, questionID models.QuestionID, surveyID string) error {
	switch {
	case errors.Is(err, models.ErrQuestionNotFound):
		return &NotFoundError{QuestionID: questionID, Err: err}
	case errors.Is(err, models.ErrSurveyNotFound):
		return &NotFoundError{SurveyID: surveyID, Err: err}
	case errors.Is(err, models.ErrUnreachable):
		return &TransportError{Err: err}
	case errors.Is(err, models.ErrRemoteRejected):
		return &ResolutionError{Err: err}
	default:
		return &ResolutionError{Err: err}
	}
}

// SortByPosition returns a copy of the questions ordered by their declared
// position. Positions need not be contiguous and ids need not be sequential.
func SortByPosition(questions []models.Question) []models.Question {
	ordered := append([]models.Question(nil), questions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

func findByID(questions []models.Question, id models.QuestionID) *models.Question {
	for i := range questions {
		if questions[i].ID == id {
			q := questions[i]
			return &q
		}
	}
	return nil
}
