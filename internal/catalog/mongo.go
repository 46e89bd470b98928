// Package catalog provides a MongoDB-backed survey catalog for deployments
// that own their survey definitions instead of calling a remote platform.
// It implements the flow package's QuestionCatalog, AnswerStore, and
// FlowAuthority interfaces over three collections: questions, answers, and
// branch_rules.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// DefaultDatabase is the database name used when the connection URI does
// not select one.
const DefaultDatabase = "surveypipe"

// branchRule is one stored branching edge. Rules for a question are
// evaluated in priority order; the first whose match value equals the
// answer wins. A rule with no match value is unconditional.
type branchRule struct {
	SurveyID   string            `bson:"survey_id"`
	QuestionID models.QuestionID `bson:"question_id"`
	Priority   int               `bson:"priority"`
	Match      string            `bson:"match,omitempty"`
	Action     string            `bson:"action"`
	TargetID   models.QuestionID `bson:"target_question_id,omitempty"`
}

// questionDoc wraps a question with its owning survey for storage.
type questionDoc struct {
	SurveyID string          `bson:"survey_id"`
	Question models.Question `bson:"question"`
}

// MongoCatalog serves survey definitions and records answers in MongoDB.
type MongoCatalog struct {
	surveys   *mongo.Collection
	questions *mongo.Collection
	answers   *mongo.Collection
	responses *mongo.Collection
	rules     *mongo.Collection
}

// NewMongoCatalog connects to MongoDB and returns a catalog bound to the
// given database. An empty database name falls back to DefaultDatabase.
func NewMongoCatalog(ctx context.Context, uri, database string) (*MongoCatalog, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("catalog: failed to ping MongoDB: %w", err)
	}
	db := client.Database(database)
	slog.Info("MongoCatalog connected", "database", database)
	return &MongoCatalog{
		surveys:   db.Collection("surveys"),
		questions: db.Collection("questions"),
		answers:   db.Collection("answers"),
		responses: db.Collection("responses"),
		rules:     db.Collection("branch_rules"),
	}, nil
}

// Questions returns the survey's question list ordered by position. A
// survey that exists but has no questions returns an empty slice; an
// unknown survey returns models.ErrSurveyNotFound.
func (c *MongoCatalog) Questions(ctx context.Context, surveyID string) ([]models.Question, error) {
	err := c.surveys.FindOne(ctx, bson.M{"_id": surveyID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("catalog: survey %s: %w", surveyID, models.ErrSurveyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to look up survey %s: %w", surveyID, err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "question.position", Value: 1}})
	cur, err := c.questions.Find(ctx, bson.M{"survey_id": surveyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to fetch questions for survey %s: %w", surveyID, err)
	}
	defer cur.Close(ctx)

	questions := []models.Question{}
	for cur.Next(ctx) {
		var doc questionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("catalog: failed to decode question: %w", err)
		}
		questions = append(questions, doc.Question)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("catalog: cursor error for survey %s: %w", surveyID, err)
	}
	return questions, nil
}

// Submit upserts the answer for a question within a response. Re-answering
// the same question overwrites the previous document.
func (c *MongoCatalog) Submit(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) error {
	filter := bson.M{"response_id": responseID, "question_id": questionID}
	update := bson.M{"$set": bson.M{
		"response_id": responseID,
		"question_id": questionID,
		"answer":      answer,
		"answered_at": time.Now(),
	}}
	_, err := c.answers.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("catalog: failed to store answer for question %d: %w", questionID, err)
	}
	return nil
}

// Complete stamps the response document as finished.
func (c *MongoCatalog) Complete(ctx context.Context, responseID string) error {
	update := bson.M{"$set": bson.M{"completed_at": time.Now()}}
	_, err := c.responses.UpdateOne(ctx, bson.M{"_id": responseID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("catalog: failed to complete response %s: %w", responseID, err)
	}
	return nil
}

// NextStep evaluates the stored branch rules for the answered question and
// returns the matching determinant. Questions without rules fall through
// to sequential order.
func (c *MongoCatalog) NextStep(ctx context.Context, responseID string, questionID models.QuestionID, answer models.Answer) (models.NextStep, error) {
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}})
	cur, err := c.rules.Find(ctx, bson.M{"question_id": questionID}, opts)
	if err != nil {
		return models.NextStep{}, fmt.Errorf("catalog: failed to fetch branch rules for question %d: %w", questionID, err)
	}
	defer cur.Close(ctx)

	var rules []branchRule
	for cur.Next(ctx) {
		var rule branchRule
		if err := cur.Decode(&rule); err != nil {
			return models.NextStep{}, fmt.Errorf("catalog: failed to decode branch rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := cur.Err(); err != nil {
		return models.NextStep{}, fmt.Errorf("catalog: branch rule cursor error: %w", err)
	}
	return evaluateRules(rules, answer), nil
}

// evaluateRules picks the determinant for an answer from rules already in
// priority order: the first matching rule wins, and no match falls through
// to sequential order.
func evaluateRules(rules []branchRule, answer models.Answer) models.NextStep {
	for _, rule := range rules {
		if !ruleMatches(rule, answer) {
			continue
		}
		switch rule.Action {
		case "go_to_question":
			return models.GoToQuestion(rule.TargetID)
		case "end_survey":
			return models.EndSurvey()
		default:
			return models.Sequential()
		}
	}
	return models.Sequential()
}

// ruleMatches reports whether the answer satisfies the rule's match value.
// Single-choice answers match on the answer text, multiple-choice on any
// selection.
func ruleMatches(rule branchRule, answer models.Answer) bool {
	if rule.Match == "" {
		return true
	}
	if answer.Text == rule.Match {
		return true
	}
	for _, sel := range answer.Selections {
		if sel == rule.Match {
			return true
		}
	}
	return false
}
