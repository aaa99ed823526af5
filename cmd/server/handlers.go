package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mgranvik/ladle/internal/domain"
	"github.com/mgranvik/ladle/internal/guard"
	"github.com/mgranvik/ladle/internal/httpapi"
	"github.com/mgranvik/ladle/internal/recipes"
	"github.com/mgranvik/ladle/internal/storage"
)

const sessionCookie = "ladle_session"

func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// stepView is what the wizard frontend renders for one page.
type stepView struct {
	Step          string          `json:"step"`
	Current       string          `json:"current"`
	EvalNumber    int             `json:"evalNumber,omitempty"`
	Recipe        *recipes.Recipe `json:"recipe,omitempty"`
	Answers       domain.Payload  `json:"answers,omitempty"`
	Completed     bool            `json:"completed"`
	CompletionURL string          `json:"completionUrl,omitempty"`
}

func startSurvey(g *guard.Guard, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpapi.RespondError(w, "invalid form data", http.StatusBadRequest)
			return
		}

		s, err := g.Start(panelInfo(r))
		if err != nil {
			httpapi.RespondError(w, "could not start session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		log.Info().Str("participant", s.ID).Str("panel_id", s.Panel.PanelID).Msg("survey started")
		http.Redirect(w, r, "/"+domain.StepDemographics.String(), http.StatusSeeOther)
	}
}

func viewStep(g *guard.Guard, catalog *recipes.Catalog, completionURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, ok := domain.ParseStep(chi.URLParam(r, "step"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		id := sessionID(r)
		if id == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		s, err := g.View(id, step)
		if err != nil {
			redirectOnGuardError(w, r, g, id, err)
			return
		}

		view := stepView{
			Step:      step.String(),
			Current:   s.Current.String(),
			Answers:   s.Responses[step.String()],
			Completed: s.Completed(),
		}
		if n, ok := step.EvalNumber(); ok {
			view.EvalNumber = n
		}
		if ref, ok := s.Recipe(step); ok {
			if rec, found := catalog.Get(ref.ID); found {
				view.Recipe = &rec
			}
		}
		if step == domain.StepDebriefing && s.Panel.PanelID != "" {
			view.CompletionURL = completionURL
		}

		httpapi.RespondJSON(w, view, http.StatusOK)
	}
}

func submitStep(g *guard.Guard, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, ok := domain.ParseStep(chi.URLParam(r, "step"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		id := sessionID(r)
		if id == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		if err := r.ParseForm(); err != nil {
			httpapi.RespondError(w, "invalid form data", http.StatusBadRequest)
			return
		}
		payload := domain.Payload{}
		for key := range r.PostForm {
			payload[key] = r.PostForm.Get(key)
		}

		next, err := g.Submit(id, step, payload)
		if err != nil {
			if errors.Is(err, guard.ErrInvalidStep) {
				httpapi.RespondError(w, "step does not accept submissions", http.StatusNotFound)
				return
			}
			redirectOnGuardError(w, r, g, id, err)
			return
		}

		log.Info().Str("participant", id).Str("step", step.String()).Msg("step submitted")
		http.Redirect(w, r, "/"+next.String(), http.StatusSeeOther)
	}
}

// redirectOnGuardError sends skipped-ahead participants back to their
// current step and everyone without a live session back to the start page.
func redirectOnGuardError(w http.ResponseWriter, r *http.Request, g *guard.Guard, id string, err error) {
	if errors.Is(err, guard.ErrOutOfOrderAccess) {
		cur, cerr := g.CurrentStep(id)
		if cerr == nil {
			http.Redirect(w, r, "/"+cur.String(), http.StatusSeeOther)
			return
		}
	}
	if errors.Is(err, guard.ErrSessionNotFound) || errors.Is(err, guard.ErrSessionExpired) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	httpapi.RespondError(w, err.Error(), http.StatusInternalServerError)
}

func getSession(g *guard.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := g.Session(sessionID(r))
		if err != nil {
			httpapi.RespondError(w, "session not found", http.StatusNotFound)
			return
		}

		status := struct {
			ID        string             `json:"id"`
			Current   string             `json:"current"`
			Completed bool               `json:"completed"`
			Recipes   []domain.RecipeRef `json:"recipes"`
		}{
			ID:        s.ID,
			Current:   s.Current.String(),
			Completed: s.Completed(),
			Recipes:   s.Recipes,
		}

		httpapi.RespondJSON(w, status, http.StatusOK)
	}
}

func qualityReport(g *guard.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := g.QualityReport(sessionID(r))
		if err != nil {
			httpapi.RespondError(w, "session not found", http.StatusNotFound)
			return
		}

		httpapi.RespondJSON(w, report, http.StatusOK)
	}
}

func adminQuality(repo storage.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := repo.QualityMetrics()
		if err != nil {
			httpapi.RespondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		httpapi.RespondJSON(w, metrics, http.StatusOK)
	}
}

func adminParticipants(repo storage.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flags, err := repo.ParticipantsWithFlags()
		if err != nil {
			httpapi.RespondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		httpapi.RespondJSON(w, flags, http.StatusOK)
	}
}
