package catalog

import (
	"testing"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name   string
		rule   branchRule
		answer models.Answer
		want   bool
	}{
		{
			name:   "unconditional rule matches any answer",
			rule:   branchRule{Action: "end_survey"},
			answer: models.Answer{Text: "anything"},
			want:   true,
		},
		{
			name:   "text answer matches",
			rule:   branchRule{Match: "A", Action: "go_to_question"},
			answer: models.Answer{Text: "A"},
			want:   true,
		},
		{
			name:   "text answer does not match",
			rule:   branchRule{Match: "A", Action: "go_to_question"},
			answer: models.Answer{Text: "B"},
			want:   false,
		},
		{
			name:   "selection matches",
			rule:   branchRule{Match: "B", Action: "go_to_question"},
			answer: models.Answer{Selections: []string{"A", "B"}},
			want:   true,
		},
		{
			name:   "no selection matches",
			rule:   branchRule{Match: "C", Action: "go_to_question"},
			answer: models.Answer{Selections: []string{"A", "B"}},
			want:   false,
		},
		{
			name:   "empty answer only matches unconditional rules",
			rule:   branchRule{Match: "A", Action: "go_to_question"},
			answer: models.Answer{},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ruleMatches(tt.rule, tt.answer); got != tt.want {
				t.Errorf("ruleMatches(%+v, %+v) = %v, want %v", tt.rule, tt.answer, got, tt.want)
			}
		})
	}
}

func TestEvaluateRulesBranchesByAnswer(t *testing.T) {
	// A single-choice question whose two options route to different
	// questions; the paths must diverge.
	rules := []branchRule{
		{QuestionID: 10, Priority: 1, Match: "A", Action: "go_to_question", TargetID: 20},
		{QuestionID: 10, Priority: 2, Match: "B", Action: "go_to_question", TargetID: 30},
	}

	stepA := evaluateRules(rules, models.Answer{Text: "A"})
	if stepA.Action != models.NextStepGoTo || stepA.QuestionID != 20 {
		t.Errorf("Answer A: got %+v, want go_to_question 20", stepA)
	}

	stepB := evaluateRules(rules, models.Answer{Text: "B"})
	if stepB.Action != models.NextStepGoTo || stepB.QuestionID != 30 {
		t.Errorf("Answer B: got %+v, want go_to_question 30", stepB)
	}

	if stepA.QuestionID == stepB.QuestionID {
		t.Error("Answers A and B must follow different paths")
	}
}

func TestEvaluateRulesFirstMatchWins(t *testing.T) {
	// Rules arrive sorted by priority; the first match shadows later ones,
	// including an unconditional fallback.
	rules := []branchRule{
		{Priority: 1, Match: "done", Action: "end_survey"},
		{Priority: 2, Action: "go_to_question", TargetID: 50},
	}

	step := evaluateRules(rules, models.Answer{Text: "done"})
	if step.Action != models.NextStepEnd {
		t.Errorf("Matching high-priority rule: got %+v, want end_survey", step)
	}

	step = evaluateRules(rules, models.Answer{Text: "other"})
	if step.Action != models.NextStepGoTo || step.QuestionID != 50 {
		t.Errorf("Fallback rule: got %+v, want go_to_question 50", step)
	}
}

func TestEvaluateRulesFallsThroughToSequential(t *testing.T) {
	if step := evaluateRules(nil, models.Answer{Text: "A"}); step.Action != models.NextStepSequential {
		t.Errorf("No rules: got %+v, want sequential", step)
	}

	rules := []branchRule{
		{Priority: 1, Match: "X", Action: "go_to_question", TargetID: 20},
	}
	if step := evaluateRules(rules, models.Answer{Text: "Y"}); step.Action != models.NextStepSequential {
		t.Errorf("No matching rule: got %+v, want sequential", step)
	}
}

func TestEvaluateRulesUnknownActionIsSequential(t *testing.T) {
	rules := []branchRule{
		{Priority: 1, Match: "A", Action: "restart_survey", TargetID: 20},
	}
	step := evaluateRules(rules, models.Answer{Text: "A"})
	if step.Action != models.NextStepSequential || step.QuestionID != 0 {
		t.Errorf("Unknown action: got %+v, want sequential", step)
	}
}
