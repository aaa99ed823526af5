package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mgranvik/ladle/internal/domain"
)

// ResponseSink writes the flat-file copy of every submission: one JSON file
// per participant with the raw responses, plus a combined CSV with one row
// per save appended to all_responses.csv. The CSV carries a fixed column
// order so partial rows from in-flight participants line up with completed
// ones.
type ResponseSink struct {
	mu  sync.Mutex
	dir string
}

const combinedCSVName = "all_responses.csv"

func NewResponseSink(dir string) (*ResponseSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create response dir: %w", err)
	}
	return &ResponseSink{dir: dir}, nil
}

// Write persists the participant's current state. Each call overwrites the
// JSON file and appends a CSV row; the newest row for a participant id is
// the authoritative one.
func (s *ResponseSink) Write(rec *ParticipantRecord, responses map[string]domain.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(responses, "", "  ")
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(s.dir, rec.ID+".json")
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return fmt.Errorf("write response json: %w", err)
	}

	return s.appendCSV(rec)
}

func (s *ResponseSink) appendCSV(rec *ParticipantRecord) error {
	path := filepath.Join(s.dir, combinedCSVName)

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open combined csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := csvColumns()

	if writeHeader {
		if err := w.Write(columns); err != nil {
			return err
		}
	}

	flat := flatten(rec)
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = flat[col]
	}
	if err := w.Write(row); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

var evalFields = []string{
	"recipe_id", "recipe_name", "recipe_category",
	"completeness_info", "completeness_ingredients", "completeness_steps",
	"healthiness", "tastiness", "feasibility", "would_make",
	"accuracy_ingredients", "accuracy_times", "accuracy_steps", "accuracy_final",
	"trust_try", "trust_professional", "trust_credible",
	"comments", "attention_check",
}

var postFields = []string{
	"cooking_skills", "new_recipe_frequency", "recipe_factors",
	"recipe_usage_frequency", "cooking_frequency",
	"trust_human_recipes", "trust_ai_recipes", "ai_recipe_usage",
	"comments", "attention_check",
}

func csvColumns() []string {
	cols := []string{
		"participant_id", "panel_id", "study_id", "panel_session_id",
		"started_at", "completed_at", "time_spent_minutes",
		"current_step", "completed",
		"demographics_age", "demographics_gender", "demographics_education",
	}
	for i := 1; i <= domain.NumEvaluations; i++ {
		for _, field := range evalFields {
			cols = append(cols, fmt.Sprintf("recipe_eval_%d_%s", i, field))
		}
	}
	for _, field := range postFields {
		cols = append(cols, "post_survey_"+field)
	}
	cols = append(cols, "time_flags")
	return cols
}

func flatten(rec *ParticipantRecord) map[string]string {
	flat := map[string]string{
		"participant_id":         rec.ID,
		"panel_id":               rec.PanelID,
		"study_id":               rec.StudyID,
		"panel_session_id":       rec.PanelSessionID,
		"started_at":             rec.StartedAt.Format(time.RFC3339),
		"time_spent_minutes":     strconv.FormatFloat(rec.TimeSpentMinutes, 'f', 2, 64),
		"current_step":           strconv.Itoa(rec.CurrentStep),
		"completed":              strconv.FormatBool(rec.Completed),
		"demographics_age":       rec.Age,
		"demographics_gender":    rec.Gender,
		"demographics_education": rec.Education,
	}
	if rec.CompletedAt != nil {
		flat["completed_at"] = rec.CompletedAt.Format(time.RFC3339)
	}

	for _, eval := range rec.Evaluations {
		prefix := fmt.Sprintf("recipe_eval_%d_", eval.EvalNumber)
		flat[prefix+"recipe_id"] = strconv.Itoa(eval.RecipeID)
		flat[prefix+"recipe_name"] = eval.RecipeName
		flat[prefix+"recipe_category"] = eval.RecipeCategory
		flat[prefix+"completeness_info"] = strconv.Itoa(eval.CompletenessInfo)
		flat[prefix+"completeness_ingredients"] = strconv.Itoa(eval.CompletenessIngredients)
		flat[prefix+"completeness_steps"] = strconv.Itoa(eval.CompletenessSteps)
		flat[prefix+"healthiness"] = strconv.Itoa(eval.Healthiness)
		flat[prefix+"tastiness"] = strconv.Itoa(eval.Tastiness)
		flat[prefix+"feasibility"] = strconv.Itoa(eval.Feasibility)
		flat[prefix+"would_make"] = strconv.Itoa(eval.WouldMake)
		flat[prefix+"accuracy_ingredients"] = strconv.Itoa(eval.AccuracyIngredients)
		flat[prefix+"accuracy_times"] = strconv.Itoa(eval.AccuracyTimes)
		flat[prefix+"accuracy_steps"] = strconv.Itoa(eval.AccuracySteps)
		flat[prefix+"accuracy_final"] = strconv.Itoa(eval.AccuracyFinal)
		flat[prefix+"trust_try"] = strconv.Itoa(eval.TrustTry)
		flat[prefix+"trust_professional"] = strconv.Itoa(eval.TrustProfessional)
		flat[prefix+"trust_credible"] = strconv.Itoa(eval.TrustCredible)
		flat[prefix+"comments"] = eval.Comments
		if eval.AttentionCheck != nil {
			flat[prefix+"attention_check"] = strconv.Itoa(*eval.AttentionCheck)
		}
	}

	if post := rec.PostSurvey; post != nil {
		flat["post_survey_cooking_skills"] = strconv.Itoa(post.CookingSkills)
		flat["post_survey_new_recipe_frequency"] = post.NewRecipeFrequency
		flat["post_survey_recipe_factors"] = strings.Join(post.RecipeFactors, "|")
		flat["post_survey_recipe_usage_frequency"] = post.RecipeUsageFrequency
		flat["post_survey_cooking_frequency"] = post.CookingFrequency
		flat["post_survey_trust_human_recipes"] = strconv.Itoa(post.TrustHuman)
		flat["post_survey_trust_ai_recipes"] = strconv.Itoa(post.TrustAI)
		flat["post_survey_ai_recipe_usage"] = post.AIRecipeUsage
		flat["post_survey_comments"] = post.Comments
		flat["post_survey_attention_check"] = post.AttentionCheck
	}

	if len(rec.TimeFlags) > 0 {
		raw, err := json.Marshal(rec.TimeFlags)
		if err == nil {
			flat["time_flags"] = string(raw)
		}
	}

	return flat
}
