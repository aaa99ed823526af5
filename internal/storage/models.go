package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/mgranvik/ladle/internal/domain"
)

// ParticipantRecord is the persisted shape of one survey session. It is
// upserted wholesale on every successful step transition, keyed by the
// participant id.
type ParticipantRecord struct {
	ID               string
	PanelID          string
	StudyID          string
	PanelSessionID   string
	StartedAt        time.Time
	CompletedAt      *time.Time
	Completed        bool
	TimeSpentMinutes float64
	CurrentStep      int
	LastActivityAt   time.Time

	// Demographics, denormalized onto the participant row.
	Age       string
	Gender    string
	Education string

	// Advisory response-time flags keyed by step name, stored as JSON.
	TimeFlags map[string]string

	Evaluations []EvaluationRecord
	PostSurvey  *PostSurveyRecord
}

// EvaluationRecord is one recipe evaluation, upserted by participant id and
// evaluation number.
type EvaluationRecord struct {
	ParticipantID  string
	EvalNumber     int
	RecipeID       int
	RecipeName     string
	RecipeCategory string

	CompletenessInfo        int
	CompletenessIngredients int
	CompletenessSteps       int
	Healthiness             int
	Tastiness               int
	Feasibility             int
	WouldMake               int
	AccuracyIngredients     int
	AccuracyTimes           int
	AccuracySteps           int
	AccuracyFinal           int
	TrustTry                int
	TrustProfessional       int
	TrustCredible           int

	Comments string

	// AttentionCheck holds the raw planted-question answer; nil when the
	// study variant did not present the check.
	AttentionCheck *int
}

// PostSurveyRecord is the terminal questionnaire, one row per participant.
type PostSurveyRecord struct {
	ParticipantID        string
	CookingSkills        int
	NewRecipeFrequency   string
	RecipeFactors        []string
	RecipeUsageFrequency string
	CookingFrequency     string
	TrustHuman           int
	TrustAI              int
	AIRecipeUsage        string
	Comments             string
	AttentionCheck       string
}

// ParticipantSummary is the slim row returned by duplicate-panel-id scans.
type ParticipantSummary struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"startedAt"`
	Completed      bool      `json:"completed"`
	CurrentStep    int       `json:"currentStep"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// QualityMetrics aggregates data-quality signals across the whole study.
type QualityMetrics struct {
	TotalParticipants     int `json:"totalParticipants"`
	CompletedParticipants int `json:"completedParticipants"`
	PanelParticipants     int `json:"panelParticipants"`
	AttentionFailures     int `json:"attentionFailures"`
	DuplicatePanelIDs     int `json:"duplicatePanelIds"`
	FastResponses         int `json:"fastResponses"`
	SlowResponses         int `json:"slowResponses"`
}

// ParticipantFlags is one participant's quality assessment for review.
type ParticipantFlags struct {
	ID                      string     `json:"id"`
	PanelID                 string     `json:"panelId,omitempty"`
	Completed               bool       `json:"completed"`
	TimeSpentMinutes        float64    `json:"timeSpentMinutes"`
	StartedAt               time.Time  `json:"startedAt"`
	CompletedAt             *time.Time `json:"completedAt,omitempty"`
	RecipeAttentionFailures int        `json:"recipeAttentionFailures"`
	PostAttentionFailures   int        `json:"postAttentionFailures"`
	AttentionPassed         bool       `json:"attentionPassed"`
	PanelDuplicateCount     int        `json:"panelDuplicateCount"`
	HasPanelDuplicates      bool       `json:"hasPanelDuplicates"`
}

// FromSession flattens a domain session into its persisted records.
func FromSession(s *domain.Session) *ParticipantRecord {
	rec := &ParticipantRecord{
		ID:             s.ID,
		PanelID:        s.Panel.PanelID,
		StudyID:        s.Panel.StudyID,
		PanelSessionID: s.Panel.PanelSessionID,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		Completed:      s.Completed(),
		CurrentStep:    int(s.Current),
		LastActivityAt: s.LastActivityAt,
		TimeFlags:      make(map[string]string, len(s.TimeFlags)),
	}
	for k, v := range s.TimeFlags {
		rec.TimeFlags[k] = v
	}

	if s.CompletedAt != nil {
		rec.TimeSpentMinutes = s.CompletedAt.Sub(s.StartedAt).Minutes()
	}

	if demo, ok := s.Responses[domain.StepDemographics.String()]; ok {
		rec.Age = demo["age"]
		rec.Gender = demo["gender"]
		rec.Education = demo["education"]
	}

	for step := domain.StepRecipeEval1; step <= domain.StepRecipeEval5; step++ {
		p, ok := s.Responses[step.String()]
		if !ok {
			continue
		}
		n, _ := step.EvalNumber()

		eval := EvaluationRecord{
			ParticipantID:           s.ID,
			EvalNumber:              n,
			RecipeName:              p["recipe_name"],
			RecipeCategory:          p["recipe_category"],
			CompletenessInfo:        atoi(p["completeness_info_rating"]),
			CompletenessIngredients: atoi(p["completeness_ingredients_rating"]),
			CompletenessSteps:       atoi(p["completeness_steps_rating"]),
			Healthiness:             atoi(p["healthiness_rating"]),
			Tastiness:               atoi(p["tastiness_rating"]),
			Feasibility:             atoi(p["feasibility_rating"]),
			WouldMake:               atoi(p["would_make"]),
			AccuracyIngredients:     atoi(p["accuracy_ingredients_rating"]),
			AccuracyTimes:           atoi(p["accuracy_times_rating"]),
			AccuracySteps:           atoi(p["accuracy_steps_rating"]),
			AccuracyFinal:           atoi(p["accuracy_final_rating"]),
			TrustTry:                atoi(p["trust_try_rating"]),
			TrustProfessional:       atoi(p["trust_professional_rating"]),
			TrustCredible:           atoi(p["trust_credible_rating"]),
			Comments:                p["comments"],
			AttentionCheck:          atoiPtr(p[domain.AttentionRecipeField]),
		}
		if ref, ok := s.Recipe(step); ok {
			eval.RecipeID = ref.ID
			if eval.RecipeName == "" {
				eval.RecipeName = ref.Name
			}
			if eval.RecipeCategory == "" {
				eval.RecipeCategory = ref.Category
			}
		}
		rec.Evaluations = append(rec.Evaluations, eval)
	}

	if p, ok := s.Responses[domain.StepPostSurvey.String()]; ok {
		rec.PostSurvey = &PostSurveyRecord{
			ParticipantID:        s.ID,
			CookingSkills:        atoi(p["cooking_skills"]),
			NewRecipeFrequency:   p["new_recipe_frequency"],
			RecipeFactors:        splitList(p["recipe_factors"]),
			RecipeUsageFrequency: p["recipe_usage_frequency"],
			CookingFrequency:     p["cooking_frequency"],
			TrustHuman:           atoi(p["trust_human_recipes"]),
			TrustAI:              atoi(p["trust_ai_recipes"]),
			AIRecipeUsage:        p["ai_recipe_usage"],
			Comments:             p["comments"],
			AttentionCheck:       p[domain.AttentionPostField],
		}
	}

	return rec
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoiPtr(s string) *int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n := atoi(s)
	return &n
}

// splitList unpacks a comma-joined multi-select form value.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
