package guard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mgranvik/ladle/internal/domain"
	"github.com/mgranvik/ladle/internal/metrics"
	"github.com/mgranvik/ladle/internal/storage"
)

type fakeRepo struct {
	mu        sync.Mutex
	saves     []*storage.ParticipantRecord
	summaries map[string][]storage.ParticipantSummary
	saveErr   error
}

func (f *fakeRepo) SaveParticipant(rec *storage.ParticipantRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, rec)
	return nil
}

func (f *fakeRepo) GetParticipant(id string) (*storage.ParticipantRecord, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRepo) FindByPanelID(panelID string) ([]storage.ParticipantSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries[panelID], nil
}

func (f *fakeRepo) QualityMetrics() (*storage.QualityMetrics, error) {
	return &storage.QualityMetrics{}, nil
}

func (f *fakeRepo) ParticipantsWithFlags() ([]storage.ParticipantFlags, error) { return nil, nil }
func (f *fakeRepo) AllParticipants() ([]storage.ParticipantRecord, error)     { return nil, nil }
func (f *fakeRepo) AllEvaluations() ([]storage.EvaluationRecord, error)       { return nil, nil }
func (f *fakeRepo) AllPostSurveys() ([]storage.PostSurveyRecord, error)       { return nil, nil }
func (f *fakeRepo) Close() error                                              { return nil }

func (f *fakeRepo) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

type fakeSource struct{}

func (fakeSource) Allocate(n int) []domain.RecipeRef {
	refs := make([]domain.RecipeRef, n)
	for i := range refs {
		refs[i] = domain.RecipeRef{ID: i + 1, Name: "Recipe", Category: "Mains"}
	}
	return refs
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGuard(t *testing.T, repo *fakeRepo) (*Guard, *testClock) {
	t.Helper()
	if repo.summaries == nil {
		repo.summaries = map[string][]storage.ParticipantSummary{}
	}
	clock := &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	g := New(repo, nil, fakeSource{}, Config{}, zerolog.Nop(), metrics.New())
	g.now = clock.Now
	t.Cleanup(g.Close)
	return g, clock
}

func walkTo(t *testing.T, g *Guard, id string, clock *testClock, until domain.Step) {
	t.Helper()
	for step := domain.StepDemographics; step < until; step++ {
		if _, err := g.View(id, step); err != nil {
			t.Fatalf("view %s: %v", step, err)
		}
		clock.Advance(time.Minute)
		if _, err := g.Submit(id, step, domain.Payload{"field": "value"}); err != nil {
			t.Fatalf("submit %s: %v", step, err)
		}
	}
}

func TestStart(t *testing.T) {
	repo := &fakeRepo{}
	g, _ := newTestGuard(t, repo)

	s, err := g.Start(domain.PanelInfo{PanelID: "pp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.ID == "" {
		t.Fatalf("expected session id")
	}
	if s.Current != domain.StepDemographics {
		t.Fatalf("new session at step %s, want demographics", s.Current)
	}
	if len(s.Recipes) != domain.NumEvaluations {
		t.Fatalf("allocated %d recipes, want %d", len(s.Recipes), domain.NumEvaluations)
	}

	cur, err := g.CurrentStep(s.ID)
	if err != nil || cur != domain.StepDemographics {
		t.Fatalf("CurrentStep = %s, %v", cur, err)
	}
}

func TestSubmitAdvances(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})

	if _, err := g.View(s.ID, domain.StepDemographics); err != nil {
		t.Fatalf("view demographics: %v", err)
	}
	clock.Advance(time.Minute)

	next, err := g.Submit(s.ID, domain.StepDemographics, domain.Payload{"age": "25"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != domain.StepRecipeEval1 {
		t.Fatalf("next = %s, want recipe_eval_1", next)
	}

	got, err := g.View(s.ID, domain.StepDemographics)
	if err != nil {
		t.Fatalf("re-view demographics: %v", err)
	}
	if got.Current != domain.StepRecipeEval1 {
		t.Fatalf("current = %s, want recipe_eval_1", got.Current)
	}
	if got.Responses["demographics"]["age"] != "25" {
		t.Fatalf("demographics payload not stored: %v", got.Responses)
	}
}

func TestOutOfOrderAccess(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	walkTo(t, g, s.ID, clock, domain.StepRecipeEval1)

	// Skipping ahead is rejected for both reads and writes, repeatedly,
	// and leaves the session untouched.
	for i := 0; i < 3; i++ {
		if _, err := g.View(s.ID, domain.StepRecipeEval3); !errors.Is(err, ErrOutOfOrderAccess) {
			t.Fatalf("view ahead: got %v, want ErrOutOfOrderAccess", err)
		}
		if _, err := g.Submit(s.ID, domain.StepPostSurvey, domain.Payload{}); !errors.Is(err, ErrOutOfOrderAccess) {
			t.Fatalf("submit ahead: got %v, want ErrOutOfOrderAccess", err)
		}

		cur, err := g.CurrentStep(s.ID)
		if err != nil || cur != domain.StepRecipeEval1 {
			t.Fatalf("redirect target = %s, %v; want recipe_eval_1", cur, err)
		}
	}

	got, _ := g.View(s.ID, domain.StepRecipeEval1)
	if _, ok := got.Responses["post_survey"]; ok {
		t.Fatalf("rejected submission must not store a payload")
	}
	if got.Current != domain.StepRecipeEval1 {
		t.Fatalf("rejected access must not move current step")
	}
}

func TestCurrentStepNeverDecreases(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	walkTo(t, g, s.ID, clock, domain.StepRecipeEval3)

	// Resubmitting an earlier step overwrites its payload but does not
	// move the participant backwards.
	if _, err := g.Submit(s.ID, domain.StepRecipeEval1, domain.Payload{"healthiness_rating": "1"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	got, _ := g.View(s.ID, domain.StepRecipeEval1)
	if got.Current != domain.StepRecipeEval3 {
		t.Fatalf("current = %s, want recipe_eval_3", got.Current)
	}
	if got.Responses["recipe_eval_1"]["healthiness_rating"] != "1" {
		t.Fatalf("resubmission should overwrite the stored payload")
	}
}

func TestSessionExpiry(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	clock.Advance(DefaultSessionTimeout + time.Minute)

	if _, err := g.View(s.ID, domain.StepDemographics); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("view after timeout: got %v, want ErrSessionExpired", err)
	}

	// The record is discarded; from here on the session simply does not
	// exist.
	if _, err := g.Submit(s.ID, domain.StepDemographics, domain.Payload{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("submit after eviction: got %v, want ErrSessionNotFound", err)
	}
	if _, err := g.CurrentStep(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("current step after eviction: got %v, want ErrSessionNotFound", err)
	}
}

func TestExpiryAppliesToEveryOperation(t *testing.T) {
	repo := &fakeRepo{}

	ops := []struct {
		name string
		call func(g *Guard, id string) error
	}{
		{"view", func(g *Guard, id string) error { _, err := g.View(id, domain.StepDemographics); return err }},
		{"submit", func(g *Guard, id string) error {
			_, err := g.Submit(id, domain.StepDemographics, domain.Payload{})
			return err
		}},
		{"current step", func(g *Guard, id string) error { _, err := g.CurrentStep(id); return err }},
		{"quality report", func(g *Guard, id string) error { _, err := g.QualityReport(id); return err }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			g, clock := newTestGuard(t, repo)
			s, _ := g.Start(domain.PanelInfo{})
			clock.Advance(DefaultSessionTimeout + time.Second)

			if err := op.call(g, s.ID); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("got %v, want ErrSessionExpired", err)
			}
		})
	}
}

func TestResponseTimeFlags(t *testing.T) {
	tests := []struct {
		name     string
		viewGap  time.Duration
		skipView bool
		want     string
	}{
		{"too fast", 5 * time.Second, false, string(domain.TimeFast)},
		{"boundary is not fast", DefaultMinResponseTime, false, ""},
		{"normal", 2 * time.Minute, false, ""},
		{"too slow", DefaultMaxResponseTime + time.Second, false, string(domain.TimeSlow)},
		{"no recorded start time", 5 * time.Second, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			g, clock := newTestGuard(t, repo)

			s, _ := g.Start(domain.PanelInfo{})
			walkTo(t, g, s.ID, clock, domain.StepRecipeEval1)

			if !tt.skipView {
				if _, err := g.View(s.ID, domain.StepRecipeEval1); err != nil {
					t.Fatalf("view: %v", err)
				}
			}
			clock.Advance(tt.viewGap)

			if _, err := g.Submit(s.ID, domain.StepRecipeEval1, domain.Payload{"tastiness_rating": "4"}); err != nil {
				t.Fatalf("submit: %v", err)
			}

			got, _ := g.View(s.ID, domain.StepRecipeEval1)
			if got.TimeFlags["recipe_eval_1"] != tt.want {
				t.Fatalf("flag = %q, want %q", got.TimeFlags["recipe_eval_1"], tt.want)
			}
		})
	}
}

func TestUntimedStepHasNoMinimum(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	if _, err := g.View(s.ID, domain.StepDemographics); err != nil {
		t.Fatalf("view: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := g.Submit(s.ID, domain.StepDemographics, domain.Payload{"age": "30"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, _ := g.View(s.ID, domain.StepDemographics)
	if len(got.TimeFlags) != 0 {
		t.Fatalf("demographics must not be flagged fast, got %v", got.TimeFlags)
	}
}

func TestCompletion(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	walkTo(t, g, s.ID, clock, domain.StepPostSurvey)

	if _, err := g.View(s.ID, domain.StepPostSurvey); err != nil {
		t.Fatalf("view post survey: %v", err)
	}
	clock.Advance(time.Minute)

	next, err := g.Submit(s.ID, domain.StepPostSurvey, domain.Payload{
		domain.AttentionPostField: "gemini",
	})
	if err != nil {
		t.Fatalf("submit post survey: %v", err)
	}
	if next != domain.StepDebriefing {
		t.Fatalf("next = %s, want debriefing", next)
	}

	got, err := g.View(s.ID, domain.StepDebriefing)
	if err != nil {
		t.Fatalf("view debriefing: %v", err)
	}
	if !got.Completed() {
		t.Fatalf("session should be completed")
	}
	if got.Current != domain.Terminal {
		t.Fatalf("current = %s, want terminal", got.Current)
	}

	completedAt := *got.CompletedAt

	// A resubmitted post-survey overwrites answers but never resets the
	// completion timestamp.
	clock.Advance(time.Minute)
	if _, err := g.Submit(s.ID, domain.StepPostSurvey, domain.Payload{"comments": "late edit"}); err != nil {
		t.Fatalf("resubmit post survey: %v", err)
	}
	got, _ = g.View(s.ID, domain.StepDebriefing)
	if !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("completed_at changed on resubmission")
	}

	cur, err := g.CurrentStep(s.ID)
	if err != nil || cur != domain.StepDebriefing {
		t.Fatalf("completed session redirects to %s, %v; want debriefing", cur, err)
	}
}

func TestSubmitDebriefingRejected(t *testing.T) {
	repo := &fakeRepo{}
	g, _ := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	if _, err := g.Submit(s.ID, domain.StepDebriefing, domain.Payload{}); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("got %v, want ErrInvalidStep", err)
	}
}

func TestQualityReport(t *testing.T) {
	repo := &fakeRepo{
		summaries: map[string][]storage.ParticipantSummary{
			"pp-dup": {{ID: "p-1"}, {ID: "p-2"}},
		},
	}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{PanelID: "pp-dup"})
	walkTo(t, g, s.ID, clock, domain.StepRecipeEval4)

	report, err := g.QualityReport(s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Duplicates.Flagged || report.Duplicates.Count != 2 {
		t.Fatalf("duplicates = %+v, want flagged count 2", report.Duplicates)
	}
	// Neither check was presented yet.
	if report.Attention.Recipe != domain.AttentionNotPresented {
		t.Fatalf("recipe check = %s, want not_presented", report.Attention.Recipe)
	}
	if !report.Attention.Passed {
		t.Fatalf("absent checks must not fail the participant")
	}
}

func TestPersistFailureDoesNotBlock(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("disk full")}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	walkTo(t, g, s.ID, clock, domain.StepRecipeEval2)

	// The in-memory session stays authoritative despite every write failing.
	got, err := g.View(s.ID, domain.StepRecipeEval1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if got.Current != domain.StepRecipeEval2 {
		t.Fatalf("current = %s, want recipe_eval_2", got.Current)
	}
}

func TestPersistOnEveryTransition(t *testing.T) {
	repo := &fakeRepo{}
	g, clock := newTestGuard(t, repo)

	s, _ := g.Start(domain.PanelInfo{})
	walkTo(t, g, s.ID, clock, domain.StepRecipeEval2)

	g.Close()

	// One write at start plus one per accepted submission.
	if n := repo.saveCount(); n != 3 {
		t.Fatalf("saves = %d, want 3", n)
	}
}
