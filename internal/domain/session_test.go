package domain

import (
	"testing"
	"time"
)

func TestStepOrder(t *testing.T) {
	order := []Step{
		StepDemographics,
		StepRecipeEval1,
		StepRecipeEval2,
		StepRecipeEval3,
		StepRecipeEval4,
		StepRecipeEval5,
		StepPostSurvey,
		StepDebriefing,
	}

	for i := 0; i < len(order)-1; i++ {
		if order[i].Next() != order[i+1] {
			t.Errorf("%s.Next() = %s, want %s", order[i], order[i].Next(), order[i+1])
		}
	}

	if StepDebriefing.Next() != Terminal {
		t.Fatalf("debriefing should advance to Terminal")
	}
	if Terminal.Next() != Terminal {
		t.Fatalf("Terminal.Next() must stay Terminal")
	}
}

func TestParseStepRoundTrip(t *testing.T) {
	for s := StepDemographics; s <= StepDebriefing; s++ {
		got, ok := ParseStep(s.String())
		if !ok || got != s {
			t.Errorf("ParseStep(%q) = %v, %v; want %v", s.String(), got, ok, s)
		}
	}

	if _, ok := ParseStep("consent"); ok {
		t.Fatalf("unknown step name should not parse")
	}
}

func TestStepTimed(t *testing.T) {
	tests := []struct {
		step  Step
		timed bool
	}{
		{StepDemographics, false},
		{StepRecipeEval1, true},
		{StepRecipeEval5, true},
		{StepPostSurvey, false},
		{StepDebriefing, false},
	}
	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			if tt.step.Timed() != tt.timed {
				t.Fatalf("%s.Timed() = %v, want %v", tt.step, tt.step.Timed(), tt.timed)
			}
		})
	}
}

func TestEvalNumber(t *testing.T) {
	n, ok := StepRecipeEval3.EvalNumber()
	if !ok || n != 3 {
		t.Fatalf("EvalNumber() = %d, %v; want 3, true", n, ok)
	}
	if _, ok := StepPostSurvey.EvalNumber(); ok {
		t.Fatalf("post survey has no evaluation number")
	}
}

func TestNewSession(t *testing.T) {
	recipes := []RecipeRef{{ID: 7, Name: "Lentil Soup", Category: "Soups"}}
	s := NewSession("", PanelInfo{PanelID: "pp-1"}, recipes)

	if s.ID == "" {
		t.Fatalf("expected generated id")
	}
	if s.Current != StepDemographics {
		t.Fatalf("new session must start at demographics, got %s", s.Current)
	}
	if s.Completed() {
		t.Fatalf("new session must not be completed")
	}
	if len(s.Responses) != 0 {
		t.Fatalf("new session must have no responses")
	}

	got, ok := s.Recipe(StepRecipeEval1)
	if !ok || got.ID != 7 {
		t.Fatalf("Recipe(eval 1) = %+v, %v; want id 7", got, ok)
	}
	if _, ok := s.Recipe(StepDemographics); ok {
		t.Fatalf("demographics has no recipe")
	}
}

func TestAttentionChecks(t *testing.T) {
	tests := []struct {
		name       string
		responses  map[string]Payload
		recipe     AttentionOutcome
		postSurvey AttentionOutcome
		passed     bool
	}{
		{
			name: "both passed",
			responses: map[string]Payload{
				"recipe_eval_3": {AttentionRecipeField: "3"},
				"post_survey":   {AttentionPostField: "gemini"},
			},
			recipe:     AttentionPassed,
			postSurvey: AttentionPassed,
			passed:     true,
		},
		{
			name: "recipe failed",
			responses: map[string]Payload{
				"recipe_eval_3": {AttentionRecipeField: "5"},
				"post_survey":   {AttentionPostField: "gemini"},
			},
			recipe:     AttentionFailed,
			postSurvey: AttentionPassed,
			passed:     false,
		},
		{
			name: "post survey wrong token",
			responses: map[string]Payload{
				"recipe_eval_3": {AttentionRecipeField: "3"},
				"post_survey":   {AttentionPostField: "mercury"},
			},
			recipe:     AttentionPassed,
			postSurvey: AttentionFailed,
			passed:     false,
		},
		{
			name: "post survey check absent",
			responses: map[string]Payload{
				"recipe_eval_3": {AttentionRecipeField: "3"},
				"post_survey":   {"comments": "tasty"},
			},
			recipe:     AttentionPassed,
			postSurvey: AttentionNotPresented,
			passed:     true,
		},
		{
			name:       "nothing presented",
			responses:  map[string]Payload{},
			recipe:     AttentionNotPresented,
			postSurvey: AttentionNotPresented,
			passed:     true,
		},
		{
			name: "non-numeric rating fails",
			responses: map[string]Payload{
				"recipe_eval_3": {AttentionRecipeField: "three"},
			},
			recipe:     AttentionFailed,
			postSurvey: AttentionNotPresented,
			passed:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateAttentionChecks(tt.responses)
			if res.Recipe != tt.recipe {
				t.Errorf("recipe outcome = %s, want %s", res.Recipe, tt.recipe)
			}
			if res.PostSurvey != tt.postSurvey {
				t.Errorf("post survey outcome = %s, want %s", res.PostSurvey, tt.postSurvey)
			}
			if res.Passed != tt.passed {
				t.Errorf("passed = %v, want %v", res.Passed, tt.passed)
			}
		})
	}
}

func TestAttentionChecksDeterministic(t *testing.T) {
	responses := map[string]Payload{
		"recipe_eval_3": {AttentionRecipeField: "2"},
		"post_survey":   {AttentionPostField: "gemini"},
	}

	first := EvaluateAttentionChecks(responses)
	for i := 0; i < 10; i++ {
		if got := EvaluateAttentionChecks(responses); got != first {
			t.Fatalf("classification changed between invocations: %+v vs %+v", got, first)
		}
	}
}

func TestClassifyResponseTime(t *testing.T) {
	min := 30 * time.Second
	max := 10 * time.Minute

	tests := []struct {
		name    string
		elapsed time.Duration
		timed   bool
		want    TimeClass
	}{
		{"well within bounds", 2 * time.Minute, true, TimeOK},
		{"too fast", 5 * time.Second, true, TimeFast},
		{"minimum boundary is not fast", min, true, TimeOK},
		{"just under minimum", min - time.Millisecond, true, TimeFast},
		{"too slow", max + time.Second, true, TimeSlow},
		{"maximum boundary is not slow", max, true, TimeOK},
		{"untimed step ignores minimum", time.Second, false, TimeOK},
		{"untimed step still flags slow", max + time.Minute, false, TimeSlow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyResponseTime(tt.elapsed, min, max, tt.timed)
			if got != tt.want {
				t.Fatalf("ClassifyResponseTime(%v) = %s, want %s", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestCheckDuplicates(t *testing.T) {
	if res := CheckDuplicates(1); res.Flagged {
		t.Fatalf("a single session is not a duplicate")
	}
	res := CheckDuplicates(2)
	if !res.Flagged || res.Count != 2 {
		t.Fatalf("CheckDuplicates(2) = %+v, want flagged with count 2", res)
	}
	if res := CheckDuplicates(0); res.Flagged || res.Count != 0 {
		t.Fatalf("CheckDuplicates(0) = %+v", res)
	}
}
