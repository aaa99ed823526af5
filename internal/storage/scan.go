package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/mgranvik/ladle/internal/domain"
)

// ErrNotFound is returned when a participant id has no row.
var ErrNotFound = errors.New("participant not found")

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// rebindSQLite leaves '?' placeholders alone.
func rebindSQLite(q string) string { return q }

// rebindPostgres rewrites '?' placeholders to $1..$n.
func rebindPostgres(q string) string {
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func scanParticipant(row rowScanner) (*ParticipantRecord, error) {
	var (
		rec         ParticipantRecord
		completedAt sql.NullTime
		flagsJSON   string
	)

	err := row.Scan(
		&rec.ID, &rec.PanelID, &rec.StudyID, &rec.PanelSessionID,
		&rec.StartedAt, &completedAt, &rec.Completed, &rec.TimeSpentMinutes,
		&rec.CurrentStep, &rec.LastActivityAt, &rec.Age, &rec.Gender, &rec.Education,
		&flagsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if flagsJSON != "" {
		if err := json.Unmarshal([]byte(flagsJSON), &rec.TimeFlags); err != nil {
			return nil, err
		}
	}

	return &rec, nil
}

func scanEvaluations(rows *sql.Rows) ([]EvaluationRecord, error) {
	var records []EvaluationRecord

	for rows.Next() {
		var (
			eval      EvaluationRecord
			attention sql.NullInt64
		)
		err := rows.Scan(
			&eval.ParticipantID, &eval.EvalNumber, &eval.RecipeID, &eval.RecipeName, &eval.RecipeCategory,
			&eval.CompletenessInfo, &eval.CompletenessIngredients, &eval.CompletenessSteps,
			&eval.Healthiness, &eval.Tastiness, &eval.Feasibility, &eval.WouldMake,
			&eval.AccuracyIngredients, &eval.AccuracyTimes, &eval.AccuracySteps, &eval.AccuracyFinal,
			&eval.TrustTry, &eval.TrustProfessional, &eval.TrustCredible, &eval.Comments, &attention,
		)
		if err != nil {
			return nil, err
		}
		if attention.Valid {
			n := int(attention.Int64)
			eval.AttentionCheck = &n
		}
		records = append(records, eval)
	}

	return records, rows.Err()
}

func scanPostSurvey(row rowScanner) (*PostSurveyRecord, error) {
	var (
		post        PostSurveyRecord
		factorsJSON string
	)

	err := row.Scan(
		&post.ParticipantID, &post.CookingSkills, &post.NewRecipeFrequency, &factorsJSON,
		&post.RecipeUsageFrequency, &post.CookingFrequency, &post.TrustHuman, &post.TrustAI,
		&post.AIRecipeUsage, &post.Comments, &post.AttentionCheck,
	)
	if err != nil {
		return nil, err
	}

	if factorsJSON != "" {
		if err := json.Unmarshal([]byte(factorsJSON), &post.RecipeFactors); err != nil {
			return nil, err
		}
	}

	return &post, nil
}

func scanSummaries(rows *sql.Rows) ([]ParticipantSummary, error) {
	var summaries []ParticipantSummary

	for rows.Next() {
		var s ParticipantSummary
		err := rows.Scan(&s.ID, &s.StartedAt, &s.Completed, &s.CurrentStep, &s.LastActivityAt)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func queryQualityMetrics(db *sql.DB, rebind func(string) string) (*QualityMetrics, error) {
	var m QualityMetrics

	counts := []struct {
		query string
		args  []any
		dest  *int
	}{
		{"SELECT COUNT(*) FROM participants", nil, &m.TotalParticipants},
		{"SELECT COUNT(*) FROM participants WHERE completed", nil, &m.CompletedParticipants},
		{"SELECT COUNT(*) FROM participants WHERE panel_id != ''", nil, &m.PanelParticipants},
		{
			"SELECT COUNT(*) FROM participants WHERE time_flags LIKE ?",
			[]any{"%" + string(domain.TimeFast) + "%"},
			&m.FastResponses,
		},
		{
			"SELECT COUNT(*) FROM participants WHERE time_flags LIKE ?",
			[]any{"%" + string(domain.TimeSlow) + "%"},
			&m.SlowResponses,
		},
		{
			`SELECT COUNT(*) FROM (
				SELECT panel_id FROM participants
				WHERE panel_id != ''
				GROUP BY panel_id
				HAVING COUNT(*) > 1
			) dup`,
			nil,
			&m.DuplicatePanelIDs,
		},
	}

	for _, c := range counts {
		if err := db.QueryRow(rebind(c.query), c.args...).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var recipeFailures, postFailures int
	err := db.QueryRow(rebind(
		"SELECT COUNT(*) FROM recipe_evaluations WHERE attention_check IS NOT NULL AND attention_check != ?",
	), domain.AttentionRecipeExpected).Scan(&recipeFailures)
	if err != nil {
		return nil, err
	}
	err = db.QueryRow(rebind(
		"SELECT COUNT(*) FROM post_survey WHERE attention_check != '' AND attention_check != ?",
	), domain.AttentionPostExpected).Scan(&postFailures)
	if err != nil {
		return nil, err
	}
	m.AttentionFailures = recipeFailures + postFailures

	return &m, nil
}

func queryParticipantFlags(db *sql.DB, rebind func(string) string) ([]ParticipantFlags, error) {
	rows, err := db.Query(rebind(`
		SELECT p.participant_id, p.panel_id, p.completed, p.time_spent_minutes,
		       p.started_at, p.completed_at,
		       (SELECT COUNT(*) FROM recipe_evaluations re
		        WHERE re.participant_id = p.participant_id
		          AND re.attention_check IS NOT NULL
		          AND re.attention_check != ?) AS recipe_failures,
		       (SELECT COUNT(*) FROM post_survey ps
		        WHERE ps.participant_id = p.participant_id
		          AND ps.attention_check != ''
		          AND ps.attention_check != ?) AS post_failures,
		       (SELECT COUNT(*) FROM participants p2
		        WHERE p2.panel_id = p.panel_id AND p.panel_id != '') AS panel_count
		FROM participants p
		ORDER BY p.started_at DESC
	`), domain.AttentionRecipeExpected, domain.AttentionPostExpected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []ParticipantFlags
	for rows.Next() {
		var (
			f           ParticipantFlags
			completedAt sql.NullTime
		)
		err := rows.Scan(
			&f.ID, &f.PanelID, &f.Completed, &f.TimeSpentMinutes,
			&f.StartedAt, &completedAt,
			&f.RecipeAttentionFailures, &f.PostAttentionFailures, &f.PanelDuplicateCount,
		)
		if err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			f.CompletedAt = &t
		}
		f.AttentionPassed = f.RecipeAttentionFailures == 0 && f.PostAttentionFailures == 0
		f.HasPanelDuplicates = f.PanelDuplicateCount > 1
		flags = append(flags, f)
	}

	return flags, rows.Err()
}
