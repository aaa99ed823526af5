package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mgranvik/ladle/internal/storage"
)

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func writeParticipants(repo storage.Repository, out string) (int, error) {
	records, err := repo.AllParticipants()
	if err != nil {
		return 0, fmt.Errorf("read participants: %w", err)
	}

	header := []string{
		"participant_id", "panel_id", "study_id", "panel_session_id",
		"started_at", "completed_at", "completed", "time_spent_minutes",
		"current_step", "last_activity_at",
		"age", "gender", "education", "time_flags",
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		flags, _ := json.Marshal(rec.TimeFlags)
		rows = append(rows, []string{
			rec.ID, rec.PanelID, rec.StudyID, rec.PanelSessionID,
			formatTime(rec.StartedAt), formatTimePtr(rec.CompletedAt),
			strconv.FormatBool(rec.Completed),
			strconv.FormatFloat(rec.TimeSpentMinutes, 'f', 2, 64),
			strconv.Itoa(rec.CurrentStep), formatTime(rec.LastActivityAt),
			rec.Age, rec.Gender, rec.Education, string(flags),
		})
	}

	return len(rows), writeCSV(filepath.Join(out, "participants.csv"), header, rows)
}

func writeEvaluations(repo storage.Repository, out string) (int, error) {
	records, err := repo.AllEvaluations()
	if err != nil {
		return 0, fmt.Errorf("read evaluations: %w", err)
	}

	header := []string{
		"participant_id", "eval_number", "recipe_id", "recipe_name", "recipe_category",
		"completeness_info", "completeness_ingredients", "completeness_steps",
		"healthiness", "tastiness", "feasibility", "would_make",
		"accuracy_ingredients", "accuracy_times", "accuracy_steps", "accuracy_final",
		"trust_try", "trust_professional", "trust_credible",
		"comments", "attention_check",
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		attention := ""
		if rec.AttentionCheck != nil {
			attention = strconv.Itoa(*rec.AttentionCheck)
		}
		rows = append(rows, []string{
			rec.ParticipantID, strconv.Itoa(rec.EvalNumber),
			strconv.Itoa(rec.RecipeID), rec.RecipeName, rec.RecipeCategory,
			strconv.Itoa(rec.CompletenessInfo), strconv.Itoa(rec.CompletenessIngredients), strconv.Itoa(rec.CompletenessSteps),
			strconv.Itoa(rec.Healthiness), strconv.Itoa(rec.Tastiness), strconv.Itoa(rec.Feasibility), strconv.Itoa(rec.WouldMake),
			strconv.Itoa(rec.AccuracyIngredients), strconv.Itoa(rec.AccuracyTimes), strconv.Itoa(rec.AccuracySteps), strconv.Itoa(rec.AccuracyFinal),
			strconv.Itoa(rec.TrustTry), strconv.Itoa(rec.TrustProfessional), strconv.Itoa(rec.TrustCredible),
			rec.Comments, attention,
		})
	}

	return len(rows), writeCSV(filepath.Join(out, "recipe_evaluations.csv"), header, rows)
}

func writePostSurveys(repo storage.Repository, out string) (int, error) {
	records, err := repo.AllPostSurveys()
	if err != nil {
		return 0, fmt.Errorf("read post surveys: %w", err)
	}

	header := []string{
		"participant_id", "cooking_skills", "new_recipe_frequency", "recipe_factors",
		"recipe_usage_frequency", "cooking_frequency",
		"trust_human", "trust_ai", "ai_recipe_usage",
		"comments", "attention_check",
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ParticipantID, strconv.Itoa(rec.CookingSkills), rec.NewRecipeFrequency,
			strings.Join(rec.RecipeFactors, "|"),
			rec.RecipeUsageFrequency, rec.CookingFrequency,
			strconv.Itoa(rec.TrustHuman), strconv.Itoa(rec.TrustAI), rec.AIRecipeUsage,
			rec.Comments, rec.AttentionCheck,
		})
	}

	return len(rows), writeCSV(filepath.Join(out, "post_survey.csv"), header, rows)
}
