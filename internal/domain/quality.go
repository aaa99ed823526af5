package domain

import (
	"strconv"
	"time"
)

// Attention checks planted in the survey. The rating check sits in the third
// recipe evaluation ("select 3 for this statement"); the token check is a
// choice question in the post-survey.
const (
	AttentionRecipeField    = "attention_check_recipe"
	AttentionRecipeExpected = 3

	AttentionPostField    = "attention_check_post"
	AttentionPostExpected = "gemini"
)

// AttentionOutcome classifies a single attention check.
type AttentionOutcome string

const (
	AttentionPassed AttentionOutcome = "passed"
	AttentionFailed AttentionOutcome = "failed"
	// AttentionNotPresented means the field was absent from the payload.
	// Not every study variant plants the check, so this is distinct from
	// a failure.
	AttentionNotPresented AttentionOutcome = "not_presented"
)

// AttentionResult holds both check outcomes. Reporting only; it never gates
// progression.
type AttentionResult struct {
	Recipe     AttentionOutcome `json:"recipe"`
	PostSurvey AttentionOutcome `json:"post_survey"`
	Passed     bool             `json:"passed"`
}

// EvaluateAttentionChecks classifies both planted checks from the stored
// responses. Pure: same responses, same result.
func EvaluateAttentionChecks(responses map[string]Payload) AttentionResult {
	res := AttentionResult{
		Recipe:     checkRating(responses[StepRecipeEval3.String()]),
		PostSurvey: checkToken(responses[StepPostSurvey.String()]),
	}
	res.Passed = res.Recipe != AttentionFailed && res.PostSurvey != AttentionFailed
	return res
}

func checkRating(p Payload) AttentionOutcome {
	raw, ok := p[AttentionRecipeField]
	if !ok || raw == "" {
		return AttentionNotPresented
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n != AttentionRecipeExpected {
		return AttentionFailed
	}
	return AttentionPassed
}

func checkToken(p Payload) AttentionOutcome {
	raw, ok := p[AttentionPostField]
	if !ok || raw == "" {
		return AttentionNotPresented
	}
	if raw != AttentionPostExpected {
		return AttentionFailed
	}
	return AttentionPassed
}

// TimeClass is the advisory response-time classification for one submission.
type TimeClass string

const (
	TimeOK   TimeClass = "ok"
	TimeFast TimeClass = "suspiciously_fast"
	TimeSlow TimeClass = "suspiciously_slow"
)

// ClassifyResponseTime classifies how long a participant spent on a step.
// The minimum bound applies only to timed steps; elapsed == min resolves
// not-fast. Pure function of its arguments.
func ClassifyResponseTime(elapsed, min, max time.Duration, timed bool) TimeClass {
	if timed && elapsed < min {
		return TimeFast
	}
	if max > 0 && elapsed > max {
		return TimeSlow
	}
	return TimeOK
}

// DuplicateResult reports how many sessions share an external panel id.
// Advisory: the caller decides whether to warn or log.
type DuplicateResult struct {
	Count   int  `json:"count"`
	Flagged bool `json:"flagged"`
}

// CheckDuplicates builds a DuplicateResult from a session count.
func CheckDuplicates(count int) DuplicateResult {
	return DuplicateResult{Count: count, Flagged: count > 1}
}
