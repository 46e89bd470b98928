package flow

import (
	"fmt"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// NotFoundError means a referenced question or survey is missing upstream.
// It is non-fatal: the session is left intact for retry.
type NotFoundError struct {
	QuestionID models.QuestionID
	SurveyID   string
	Err        error
}

func (e *NotFoundError) Error() string {
	if e.QuestionID != 0 {
		return fmt.Sprintf("question %d not found upstream", e.QuestionID)
	}
	return fmt.Sprintf("survey %q not found upstream", e.SurveyID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ResolutionError means the flow authority rejected the request or failed
// internally while computing the next step.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("next-step resolution failed: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransportError means the remote call itself failed. The resolver never
// retries; retry policy belongs to the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flow authority unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
