package domain

// Step is one stage of the survey wizard. Steps form a total order; a
// participant moves through them strictly forward.
type Step int

const (
	StepDemographics Step = iota
	StepRecipeEval1
	StepRecipeEval2
	StepRecipeEval3
	StepRecipeEval4
	StepRecipeEval5
	StepPostSurvey
	StepDebriefing
	// Terminal is one past the last step. A session whose current step
	// equals Terminal has finished the study.
	Terminal
)

// NumEvaluations is how many recipe evaluations each participant completes.
const NumEvaluations = 5

var stepNames = [...]string{
	"demographics",
	"recipe_eval_1",
	"recipe_eval_2",
	"recipe_eval_3",
	"recipe_eval_4",
	"recipe_eval_5",
	"post_survey",
	"debriefing",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "done"
	}
	return stepNames[s]
}

// ParseStep maps a step name back to its Step. The second return value is
// false for unknown names.
func ParseStep(name string) (Step, bool) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), true
		}
	}
	return 0, false
}

// Next returns the step that follows s, capped at Terminal.
func (s Step) Next() Step {
	if s >= Terminal {
		return Terminal
	}
	return s + 1
}

// Valid reports whether s names a real wizard page.
func (s Step) Valid() bool {
	return s >= StepDemographics && s <= StepDebriefing
}

// Timed reports whether response-time classification applies to s. Only the
// recipe evaluations carry a minimum-time bound; reading a recipe takes time,
// filling in demographics does not.
func (s Step) Timed() bool {
	return s >= StepRecipeEval1 && s <= StepRecipeEval5
}

// EvalNumber returns the 1-based evaluation number for recipe evaluation
// steps, and false for every other step.
func (s Step) EvalNumber() (int, bool) {
	if !s.Timed() {
		return 0, false
	}
	return int(s-StepRecipeEval1) + 1, true
}
