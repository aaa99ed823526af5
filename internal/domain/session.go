package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the submitted form data for a single step. Values are raw form
// strings; the storage layer parses ratings when it flattens them.
type Payload map[string]string

// RecipeRef identifies one catalog recipe allocated to a participant.
type RecipeRef struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// PanelInfo carries the identifiers an external recruiting panel attaches to
// an incoming participant. All fields are optional; direct (non-panel)
// participants have none.
type PanelInfo struct {
	PanelID        string
	StudyID        string
	PanelSessionID string
}

// Session is one participant's pass through the survey. The guard is the only
// writer; the ID never changes after creation and Current never decreases.
type Session struct {
	ID             string
	Panel          PanelInfo
	Recipes        []RecipeRef
	Current        Step
	Responses      map[string]Payload
	StartedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    *time.Time

	// StepStartedAt records when each step's page was last served, keyed by
	// step name. Revisiting a page before submitting overwrites the entry.
	StepStartedAt map[string]time.Time

	// TimeFlags holds advisory response-time classifications keyed by step
	// name ("suspiciously_fast" / "suspiciously_slow"). Never blocks.
	TimeFlags map[string]string

	// Attention is set once, when the post-survey is submitted.
	Attention *AttentionResult
}

// NewSession creates a session at the first step. An empty id gets a random
// one.
func NewSession(id string, panel PanelInfo, recipes []RecipeRef) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()

	return &Session{
		ID:             id,
		Panel:          panel,
		Recipes:        recipes,
		Current:        StepDemographics,
		Responses:      make(map[string]Payload),
		StartedAt:      now,
		LastActivityAt: now,
		StepStartedAt:  make(map[string]time.Time),
		TimeFlags:      make(map[string]string),
	}
}

// Completed reports whether the participant reached the end of the study.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// Recipe returns the recipe allocated to the given evaluation step.
func (s *Session) Recipe(step Step) (RecipeRef, bool) {
	n, ok := step.EvalNumber()
	if !ok || n > len(s.Recipes) {
		return RecipeRef{}, false
	}
	return s.Recipes[n-1], true
}
