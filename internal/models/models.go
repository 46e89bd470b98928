// Package models defines the core data structures for SurveyPipe.
//
// It includes question, answer, and next-step types shared across modules.
package models

import (
	"errors"
	"time"
)

// QuestionID is the stable identity of a question. It never changes even
// when the survey author reorders or inserts questions.
type QuestionID int64

// ListIndex is a position within one session's cached ordered question
// list. It is ephemeral and must never be used as a question identity.
type ListIndex int

// QuestionType defines how an answer to a question is interpreted.
type QuestionType string

const (
	// QuestionTypeText expects a free-form text answer.
	QuestionTypeText QuestionType = "text"
	// QuestionTypeSingleChoice expects exactly one of the declared options.
	QuestionTypeSingleChoice QuestionType = "single_choice"
	// QuestionTypeMultipleChoice expects one or more of the declared options.
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	// QuestionTypeRating expects an integer within the rating bounds.
	QuestionTypeRating QuestionType = "rating"
	// QuestionTypeLocation expects geographic coordinates.
	QuestionTypeLocation QuestionType = "location"
	// QuestionTypeNumber expects a numeric answer.
	QuestionTypeNumber QuestionType = "number"
	// QuestionTypeDate expects a calendar date answer.
	QuestionTypeDate QuestionType = "date"
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeText, QuestionTypeSingleChoice, QuestionTypeMultipleChoice,
		QuestionTypeRating, QuestionTypeLocation, QuestionTypeNumber, QuestionTypeDate:
		return true
	default:
		return false
	}
}

// AttachmentType defines the media kind of a question attachment.
type AttachmentType string

const (
	// AttachmentTypeImage is a picture attachment.
	AttachmentTypeImage AttachmentType = "image"
	// AttachmentTypeVideo is a video attachment.
	AttachmentTypeVideo AttachmentType = "video"
	// AttachmentTypeAudio is an audio attachment.
	AttachmentTypeAudio AttachmentType = "audio"
	// AttachmentTypeDocument is a generic document attachment.
	AttachmentTypeDocument AttachmentType = "document"
)

// IsValidAttachmentType checks if the given attachment type is supported.
func IsValidAttachmentType(at AttachmentType) bool {
	switch at {
	case AttachmentTypeImage, AttachmentTypeVideo, AttachmentTypeAudio, AttachmentTypeDocument:
		return true
	default:
		return false
	}
}

// Attachment represents one media item declared on a question.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	URL      string         `json:"url"`
	MimeType string         `json:"mime_type,omitempty"`
	FileName string         `json:"file_name,omitempty"`
}

// Validation constants for answers and questions.
const (
	// MaxTextAnswerLength defines the maximum allowed length for text answers.
	MaxTextAnswerLength = 4000
	// DefaultRatingMin is the lower rating bound when the question declares none.
	DefaultRatingMin = 1
	// DefaultRatingMax is the upper rating bound when the question declares none.
	DefaultRatingMax = 5
	// UserDateFormat is the user-facing date layout (DD.MM.YYYY).
	UserDateFormat = "02.01.2006"
	// WireDateFormat is the ISO date layout accepted alongside UserDateFormat.
	WireDateFormat = "2006-01-02"
)

// Error variables for better error handling and testability.
var (
	ErrNoActiveSurvey     = errors.New("no active survey for user")
	ErrQuestionVisited    = errors.New("question already answered")
	ErrSkipRequired       = errors.New("cannot skip a required question")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrAnsweredAndSkipped = errors.New("question marked both answered and skipped")
	ErrEmptyCatalog       = errors.New("survey has no questions")
	ErrSurveyNotFound     = errors.New("survey not found")
	ErrQuestionNotFound   = errors.New("question not found")
	// ErrRemoteRejected marks a validation or server-side failure reported
	// by the remote survey service.
	ErrRemoteRejected = errors.New("remote survey service rejected request")
	// ErrUnreachable marks a transport-level failure talking to the remote
	// survey service.
	ErrUnreachable = errors.New("remote survey service unreachable")
)

// Question is a read-only survey question as served by the catalog.
type Question struct {
	ID          QuestionID   `json:"id"`
	Position    int          `json:"position"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Required    bool         `json:"required"`
	Options     []string     `json:"options,omitempty"`
	RatingMin   *int         `json:"rating_min,omitempty"`
	RatingMax   *int         `json:"rating_max,omitempty"`
	MinValue    *float64     `json:"min_value,omitempty"`
	MaxValue    *float64     `json:"max_value,omitempty"`
	MinDate     *time.Time   `json:"min_date,omitempty"`
	MaxDate     *time.Time   `json:"max_date,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// HasOption reports whether value exactly matches one of the declared options.
func (q *Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// RatingBounds returns the effective rating bounds, applying defaults when
// the question declares none.
func (q *Question) RatingBounds() (min, max int) {
	min, max = DefaultRatingMin, DefaultRatingMax
	if q.RatingMin != nil {
		min = *q.RatingMin
	}
	if q.RatingMax != nil {
		max = *q.RatingMax
	}
	return min, max
}

// Location represents geographic coordinates supplied as an answer.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Answer is the decoded inbound payload for one question. The transport
// adapter fills Text for textual replies, Selections for multi-select
// replies, and Location for shared coordinates.
type Answer struct {
	Text       string    `json:"text,omitempty"`
	Selections []string  `json:"selections,omitempty"`
	Location   *Location `json:"location,omitempty"`
}

// IsEmpty reports whether the answer carries no payload at all.
func (a Answer) IsEmpty() bool {
	return a.Text == "" && len(a.Selections) == 0 && a.Location == nil
}

// NextStepAction identifies the kind of next-step determinant returned by
// the flow authority.
type NextStepAction string

const (
	// NextStepGoTo directs the session to a specific question by stable id.
	NextStepGoTo NextStepAction = "go_to_question"
	// NextStepEnd ends the survey.
	NextStepEnd NextStepAction = "end_survey"
	// NextStepSequential falls through to the next question in natural order.
	NextStepSequential NextStepAction = "sequential"
)

// NextStep is the externally-computed instruction for what follows an answer.
type NextStep struct {
	Action     NextStepAction `json:"action"`
	QuestionID QuestionID     `json:"question_id,omitempty"`
}

// GoToQuestion builds a determinant naming a specific question.
func GoToQuestion(id QuestionID) NextStep {
	return NextStep{Action: NextStepGoTo, QuestionID: id}
}

// EndSurvey builds a determinant that ends the survey.
func EndSurvey() NextStep {
	return NextStep{Action: NextStepEnd}
}

// Sequential builds a determinant that falls through to natural order.
func Sequential() NextStep {
	return NextStep{Action: NextStepSequential}
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the delivery status of one outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a respondent.
type Response struct {
	From     string    `json:"from"`
	ChatID   string    `json:"chat_id"`
	Body     string    `json:"body"`
	Location *Location `json:"location,omitempty"`
	Time     int64     `json:"time"`
}

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful API response.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed API response.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard envelope for HTTP API responses.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
