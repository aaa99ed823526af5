package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	repo := &PostgresRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *PostgresRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS participants (
		participant_id TEXT PRIMARY KEY,
		panel_id TEXT NOT NULL DEFAULT '',
		study_id TEXT NOT NULL DEFAULT '',
		panel_session_id TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		time_spent_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_step INTEGER NOT NULL DEFAULT 0,
		last_activity_at TIMESTAMPTZ NOT NULL,
		age TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		education TEXT NOT NULL DEFAULT '',
		time_flags TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS recipe_evaluations (
		participant_id TEXT NOT NULL REFERENCES participants(participant_id),
		eval_number INTEGER NOT NULL,
		recipe_id INTEGER NOT NULL DEFAULT 0,
		recipe_name TEXT NOT NULL DEFAULT '',
		recipe_category TEXT NOT NULL DEFAULT '',
		completeness_info INTEGER NOT NULL DEFAULT 0,
		completeness_ingredients INTEGER NOT NULL DEFAULT 0,
		completeness_steps INTEGER NOT NULL DEFAULT 0,
		healthiness INTEGER NOT NULL DEFAULT 0,
		tastiness INTEGER NOT NULL DEFAULT 0,
		feasibility INTEGER NOT NULL DEFAULT 0,
		would_make INTEGER NOT NULL DEFAULT 0,
		accuracy_ingredients INTEGER NOT NULL DEFAULT 0,
		accuracy_times INTEGER NOT NULL DEFAULT 0,
		accuracy_steps INTEGER NOT NULL DEFAULT 0,
		accuracy_final INTEGER NOT NULL DEFAULT 0,
		trust_try INTEGER NOT NULL DEFAULT 0,
		trust_professional INTEGER NOT NULL DEFAULT 0,
		trust_credible INTEGER NOT NULL DEFAULT 0,
		comments TEXT NOT NULL DEFAULT '',
		attention_check INTEGER,
		PRIMARY KEY (participant_id, eval_number)
	);

	CREATE TABLE IF NOT EXISTS post_survey (
		participant_id TEXT PRIMARY KEY REFERENCES participants(participant_id),
		cooking_skills INTEGER NOT NULL DEFAULT 0,
		new_recipe_frequency TEXT NOT NULL DEFAULT '',
		recipe_factors TEXT NOT NULL DEFAULT '[]',
		recipe_usage_frequency TEXT NOT NULL DEFAULT '',
		cooking_frequency TEXT NOT NULL DEFAULT '',
		trust_human INTEGER NOT NULL DEFAULT 0,
		trust_ai INTEGER NOT NULL DEFAULT 0,
		ai_recipe_usage TEXT NOT NULL DEFAULT '',
		comments TEXT NOT NULL DEFAULT '',
		attention_check TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_participants_panel_id ON participants(panel_id);
	CREATE INDEX IF NOT EXISTS idx_participants_started_at ON participants(started_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *PostgresRepository) SaveParticipant(rec *ParticipantRecord) error {
	flagsJSON, err := json.Marshal(timeFlagsOrEmpty(rec.TimeFlags))
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(rebindPostgres(`
		INSERT INTO participants
		(participant_id, panel_id, study_id, panel_session_id, started_at, completed_at,
		 completed, time_spent_minutes, current_step, last_activity_at, age, gender, education, time_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			panel_id = excluded.panel_id,
			study_id = excluded.study_id,
			panel_session_id = excluded.panel_session_id,
			completed_at = excluded.completed_at,
			completed = excluded.completed,
			time_spent_minutes = excluded.time_spent_minutes,
			current_step = excluded.current_step,
			last_activity_at = excluded.last_activity_at,
			age = excluded.age,
			gender = excluded.gender,
			education = excluded.education,
			time_flags = excluded.time_flags
	`),
		rec.ID, rec.PanelID, rec.StudyID, rec.PanelSessionID, rec.StartedAt, rec.CompletedAt,
		rec.Completed, rec.TimeSpentMinutes, rec.CurrentStep, rec.LastActivityAt,
		rec.Age, rec.Gender, rec.Education, string(flagsJSON),
	)
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}

	for _, eval := range rec.Evaluations {
		_, err = tx.Exec(rebindPostgres(`
			INSERT INTO recipe_evaluations
			(participant_id, eval_number, recipe_id, recipe_name, recipe_category,
			 completeness_info, completeness_ingredients, completeness_steps,
			 healthiness, tastiness, feasibility, would_make,
			 accuracy_ingredients, accuracy_times, accuracy_steps, accuracy_final,
			 trust_try, trust_professional, trust_credible, comments, attention_check)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(participant_id, eval_number) DO UPDATE SET
				recipe_id = excluded.recipe_id,
				recipe_name = excluded.recipe_name,
				recipe_category = excluded.recipe_category,
				completeness_info = excluded.completeness_info,
				completeness_ingredients = excluded.completeness_ingredients,
				completeness_steps = excluded.completeness_steps,
				healthiness = excluded.healthiness,
				tastiness = excluded.tastiness,
				feasibility = excluded.feasibility,
				would_make = excluded.would_make,
				accuracy_ingredients = excluded.accuracy_ingredients,
				accuracy_times = excluded.accuracy_times,
				accuracy_steps = excluded.accuracy_steps,
				accuracy_final = excluded.accuracy_final,
				trust_try = excluded.trust_try,
				trust_professional = excluded.trust_professional,
				trust_credible = excluded.trust_credible,
				comments = excluded.comments,
				attention_check = excluded.attention_check
		`),
			eval.ParticipantID, eval.EvalNumber, eval.RecipeID, eval.RecipeName, eval.RecipeCategory,
			eval.CompletenessInfo, eval.CompletenessIngredients, eval.CompletenessSteps,
			eval.Healthiness, eval.Tastiness, eval.Feasibility, eval.WouldMake,
			eval.AccuracyIngredients, eval.AccuracyTimes, eval.AccuracySteps, eval.AccuracyFinal,
			eval.TrustTry, eval.TrustProfessional, eval.TrustCredible, eval.Comments, eval.AttentionCheck,
		)
		if err != nil {
			return fmt.Errorf("save evaluation %d: %w", eval.EvalNumber, err)
		}
	}

	if post := rec.PostSurvey; post != nil {
		factorsJSON, err := json.Marshal(factorsOrEmpty(post.RecipeFactors))
		if err != nil {
			return err
		}

		_, err = tx.Exec(rebindPostgres(`
			INSERT INTO post_survey
			(participant_id, cooking_skills, new_recipe_frequency, recipe_factors,
			 recipe_usage_frequency, cooking_frequency, trust_human, trust_ai,
			 ai_recipe_usage, comments, attention_check)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(participant_id) DO UPDATE SET
				cooking_skills = excluded.cooking_skills,
				new_recipe_frequency = excluded.new_recipe_frequency,
				recipe_factors = excluded.recipe_factors,
				recipe_usage_frequency = excluded.recipe_usage_frequency,
				cooking_frequency = excluded.cooking_frequency,
				trust_human = excluded.trust_human,
				trust_ai = excluded.trust_ai,
				ai_recipe_usage = excluded.ai_recipe_usage,
				comments = excluded.comments,
				attention_check = excluded.attention_check
		`),
			post.ParticipantID, post.CookingSkills, post.NewRecipeFrequency, string(factorsJSON),
			post.RecipeUsageFrequency, post.CookingFrequency, post.TrustHuman, post.TrustAI,
			post.AIRecipeUsage, post.Comments, post.AttentionCheck,
		)
		if err != nil {
			return fmt.Errorf("save post survey: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetParticipant(id string) (*ParticipantRecord, error) {
	row := r.db.QueryRow(rebindPostgres(`
		SELECT participant_id, panel_id, study_id, panel_session_id, started_at, completed_at,
		       completed, time_spent_minutes, current_step, last_activity_at, age, gender, education, time_flags
		FROM participants
		WHERE participant_id = ?
	`), id)

	rec, err := scanParticipant(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(rebindPostgres(`
		SELECT participant_id, eval_number, recipe_id, recipe_name, recipe_category,
		       completeness_info, completeness_ingredients, completeness_steps,
		       healthiness, tastiness, feasibility, would_make,
		       accuracy_ingredients, accuracy_times, accuracy_steps, accuracy_final,
		       trust_try, trust_professional, trust_credible, comments, attention_check
		FROM recipe_evaluations
		WHERE participant_id = ?
		ORDER BY eval_number
	`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec.Evaluations, err = scanEvaluations(rows)
	if err != nil {
		return nil, err
	}

	post, err := scanPostSurvey(r.db.QueryRow(rebindPostgres(`
		SELECT participant_id, cooking_skills, new_recipe_frequency, recipe_factors,
		       recipe_usage_frequency, cooking_frequency, trust_human, trust_ai,
		       ai_recipe_usage, comments, attention_check
		FROM post_survey
		WHERE participant_id = ?
	`), id))
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		rec.PostSurvey = post
	}

	return rec, nil
}

func (r *PostgresRepository) FindByPanelID(panelID string) ([]ParticipantSummary, error) {
	rows, err := r.db.Query(rebindPostgres(`
		SELECT participant_id, started_at, completed, current_step, last_activity_at
		FROM participants
		WHERE panel_id = ? AND panel_id != ''
		ORDER BY started_at
	`), panelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func (r *PostgresRepository) QualityMetrics() (*QualityMetrics, error) {
	return queryQualityMetrics(r.db, rebindPostgres)
}

func (r *PostgresRepository) ParticipantsWithFlags() ([]ParticipantFlags, error) {
	return queryParticipantFlags(r.db, rebindPostgres)
}

func (r *PostgresRepository) AllParticipants() ([]ParticipantRecord, error) {
	rows, err := r.db.Query(`
		SELECT participant_id, panel_id, study_id, panel_session_id, started_at, completed_at,
		       completed, time_spent_minutes, current_step, last_activity_at, age, gender, education, time_flags
		FROM participants
		ORDER BY started_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ParticipantRecord
	for rows.Next() {
		rec, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) AllEvaluations() ([]EvaluationRecord, error) {
	rows, err := r.db.Query(`
		SELECT participant_id, eval_number, recipe_id, recipe_name, recipe_category,
		       completeness_info, completeness_ingredients, completeness_steps,
		       healthiness, tastiness, feasibility, would_make,
		       accuracy_ingredients, accuracy_times, accuracy_steps, accuracy_final,
		       trust_try, trust_professional, trust_credible, comments, attention_check
		FROM recipe_evaluations
		ORDER BY participant_id, eval_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvaluations(rows)
}

func (r *PostgresRepository) AllPostSurveys() ([]PostSurveyRecord, error) {
	rows, err := r.db.Query(`
		SELECT participant_id, cooking_skills, new_recipe_frequency, recipe_factors,
		       recipe_usage_frequency, cooking_frequency, trust_human, trust_ai,
		       ai_recipe_usage, comments, attention_check
		FROM post_survey
		ORDER BY participant_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PostSurveyRecord
	for rows.Next() {
		post, err := scanPostSurvey(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *post)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
