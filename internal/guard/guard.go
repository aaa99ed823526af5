// Package guard owns participant sessions and enforces step progression:
// a participant may revisit completed steps but never skip ahead, idle
// sessions expire, and every accepted submission is scored against the
// study's data-quality heuristics before being persisted.
package guard

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mgranvik/ladle/internal/domain"
	"github.com/mgranvik/ladle/internal/metrics"
	"github.com/mgranvik/ladle/internal/storage"
)

var (
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrOutOfOrderAccess = errors.New("step accessed out of order")
	ErrInvalidStep      = errors.New("invalid step")
)

// Config holds the progression and validation thresholds.
type Config struct {
	// SessionTimeout is how long a session may sit idle before it is
	// treated as gone.
	SessionTimeout time.Duration

	// MinResponseTime flags timed steps submitted faster than a human
	// could plausibly read the material.
	MinResponseTime time.Duration

	// MaxResponseTime flags any step left open implausibly long.
	MaxResponseTime time.Duration
}

const (
	DefaultSessionTimeout  = 60 * time.Minute
	DefaultMinResponseTime = 30 * time.Second
	DefaultMaxResponseTime = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MinResponseTime <= 0 {
		c.MinResponseTime = DefaultMinResponseTime
	}
	if c.MaxResponseTime <= 0 {
		c.MaxResponseTime = DefaultMaxResponseTime
	}
	return c
}

// Sink receives the flat-file copy of every persisted transition.
type Sink interface {
	Write(rec *storage.ParticipantRecord, responses map[string]domain.Payload) error
}

// RecipeSource allocates the recipes a new participant will evaluate.
type RecipeSource interface {
	Allocate(n int) []domain.RecipeRef
}

// Report is the per-session data-quality summary. Everything in it is
// advisory; nothing here ever blocked the participant.
type Report struct {
	SessionID  string                 `json:"sessionId"`
	TimeFlags  map[string]string      `json:"responseTimeFlags"`
	Attention  domain.AttentionResult `json:"attentionChecks"`
	Duplicates domain.DuplicateResult `json:"duplicatePanelId"`
}

// Guard is the session store plus the progression rules. All session
// mutation goes through it.
type Guard struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	repo    storage.Repository
	sink    Sink
	recipes RecipeSource
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	now       func() time.Time
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func New(repo storage.Repository, sink Sink, recipes RecipeSource, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Guard {
	g := &Guard{
		sessions: make(map[string]*domain.Session),
		repo:     repo,
		sink:     sink,
		recipes:  recipes,
		cfg:      cfg.withDefaults(),
		log:      log,
		metrics:  m,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	g.wg.Add(1)
	go g.sweepLoop()

	return g
}

// Close stops the background sweep and waits for in-flight persistence
// writes to finish.
func (g *Guard) Close() {
	g.closeOnce.Do(func() { close(g.done) })
	g.wg.Wait()
}

func (g *Guard) sweepLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.done:
			return
		}
	}
}

// sweep evicts expired sessions and completed sessions past the retention
// window. Completed sessions live on in storage; the in-memory record only
// needs to survive long enough to serve the debriefing page.
func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-time.Hour)

	for id, s := range g.sessions {
		switch {
		case now.Sub(s.LastActivityAt) > g.cfg.SessionTimeout:
			delete(g.sessions, id)
			g.metrics.SessionsExpired.Inc()
			g.metrics.ActiveSessions.Dec()
			g.log.Info().Str("participant", id).Msg("evicted expired session")
		case s.Completed() && s.CompletedAt.Before(cutoff):
			delete(g.sessions, id)
			g.metrics.ActiveSessions.Dec()
		}
	}
}

// Start creates a session at the first step and registers it. Panel
// identifiers are optional; when present a duplicate scan is kicked off in
// the background so reused panel ids show up in the logs immediately.
func (g *Guard) Start(panel domain.PanelInfo) (*domain.Session, error) {
	var refs []domain.RecipeRef
	if g.recipes != nil {
		refs = g.recipes.Allocate(domain.NumEvaluations)
	}

	s := domain.NewSession("", panel, refs)

	g.mu.Lock()
	now := g.now()
	s.StartedAt = now
	s.LastActivityAt = now
	if _, exists := g.sessions[s.ID]; exists {
		g.mu.Unlock()
		return nil, ErrSessionExists
	}
	g.sessions[s.ID] = s
	g.metrics.SessionsStarted.Inc()
	g.metrics.ActiveSessions.Inc()
	g.persistLocked(s)
	snapshot := *s
	g.mu.Unlock()

	g.log.Info().
		Str("participant", s.ID).
		Str("panel_id", panel.PanelID).
		Msg("session started")

	if panel.PanelID != "" {
		g.wg.Add(1)
		go g.warnDuplicates(s.ID, panel.PanelID)
	}

	return &snapshot, nil
}

func (g *Guard) warnDuplicates(sessionID, panelID string) {
	defer g.wg.Done()

	res, err := g.duplicateCheck(panelID)
	if err != nil {
		g.log.Warn().Err(err).Str("panel_id", panelID).Msg("duplicate scan failed")
		return
	}
	if res.Flagged {
		g.metrics.QualityFlags.WithLabelValues("duplicate_panel_id").Inc()
		g.log.Warn().
			Str("participant", sessionID).
			Str("panel_id", panelID).
			Int("count", res.Count).
			Msg("panel id already has sessions")
	}
}

// View grants read access to a step: allowed for any step the participant
// has reached, rejected beyond that. Serving a step page records its start
// time for response-time validation; revisiting before submission resets it.
func (g *Guard) View(id string, step domain.Step) (*domain.Session, error) {
	if !step.Valid() {
		return nil, ErrInvalidStep
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookupLocked(id)
	if err != nil {
		return nil, err
	}

	if step > s.Current {
		g.metrics.OutOfOrderRedirects.Inc()
		return nil, ErrOutOfOrderAccess
	}

	now := g.now()
	s.StepStartedAt[step.String()] = now
	s.LastActivityAt = now

	snapshot := *s
	return &snapshot, nil
}

// Session returns a point-in-time copy of the session without recording a
// page view.
func (g *Guard) Session(id string) (*domain.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookupLocked(id)
	if err != nil {
		return nil, err
	}

	snapshot := *s
	return &snapshot, nil
}

// Submit applies a step submission. Write access requires the step to be the
// participant's current one; completed steps may be resubmitted and
// overwrite their earlier payload. Returns the step to send the participant
// to next.
func (g *Guard) Submit(id string, step domain.Step, payload domain.Payload) (domain.Step, error) {
	if !step.Valid() || step == domain.StepDebriefing {
		return 0, ErrInvalidStep
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookupLocked(id)
	if err != nil {
		return 0, err
	}

	if step > s.Current {
		g.metrics.OutOfOrderRedirects.Inc()
		return 0, ErrOutOfOrderAccess
	}

	now := g.now()
	name := step.String()

	// Response-time check. A missing start time means the page was never
	// served to this client (a retry, usually); skip silently rather than
	// punishing it.
	if startedAt, ok := s.StepStartedAt[name]; ok {
		elapsed := now.Sub(startedAt)
		class := domain.ClassifyResponseTime(elapsed, g.cfg.MinResponseTime, g.cfg.MaxResponseTime, step.Timed())
		if class != domain.TimeOK {
			s.TimeFlags[name] = string(class)
			g.metrics.QualityFlags.WithLabelValues(string(class)).Inc()
			g.log.Warn().
				Str("participant", id).
				Str("step", name).
				Dur("elapsed", elapsed).
				Str("class", string(class)).
				Msg("response time flagged")
		}
	}

	s.Responses[name] = payload
	if next := step.Next(); next > s.Current {
		s.Current = next
	}
	s.LastActivityAt = now

	next := step.Next()

	if step == domain.StepPostSurvey {
		res := domain.EvaluateAttentionChecks(s.Responses)
		s.Attention = &res
		if !res.Passed {
			g.metrics.QualityFlags.WithLabelValues("attention_failed").Inc()
			g.log.Warn().
				Str("participant", id).
				Str("recipe_check", string(res.Recipe)).
				Str("post_check", string(res.PostSurvey)).
				Msg("attention check failed")
		}

		if s.CompletedAt == nil {
			t := now
			s.CompletedAt = &t
			s.Current = domain.Terminal
			g.metrics.SessionsCompleted.Inc()
			g.log.Info().Str("participant", id).Msg("session completed")
		}
	}

	g.metrics.StepSubmissions.WithLabelValues(name).Inc()
	g.persistLocked(s)

	return next, nil
}

// CurrentStep is the canonical redirect target for this session. Sessions
// past the end land on the debriefing page.
func (g *Guard) CurrentStep(id string) (domain.Step, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookupLocked(id)
	if err != nil {
		return 0, err
	}

	if s.Current >= domain.Terminal {
		return domain.StepDebriefing, nil
	}
	return s.Current, nil
}

// QualityReport summarizes the advisory signals for one session.
func (g *Guard) QualityReport(id string) (*Report, error) {
	g.mu.Lock()
	s, err := g.lookupLocked(id)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}

	report := &Report{
		SessionID: s.ID,
		TimeFlags: make(map[string]string, len(s.TimeFlags)),
	}
	for k, v := range s.TimeFlags {
		report.TimeFlags[k] = v
	}
	if s.Attention != nil {
		report.Attention = *s.Attention
	} else {
		report.Attention = domain.EvaluateAttentionChecks(s.Responses)
	}
	panelID := s.Panel.PanelID
	g.mu.Unlock()

	if panelID != "" {
		res, err := g.duplicateCheck(panelID)
		if err != nil {
			g.log.Warn().Err(err).Str("panel_id", panelID).Msg("duplicate scan failed")
		} else {
			report.Duplicates = res
		}
	}

	return report, nil
}

// CheckDuplicatePanelID reports how many known sessions share the panel id.
func (g *Guard) CheckDuplicatePanelID(panelID string) (domain.DuplicateResult, error) {
	if panelID == "" {
		return domain.DuplicateResult{}, nil
	}
	return g.duplicateCheck(panelID)
}

// ActiveSessions reports how many uncompleted sessions are held in memory.
func (g *Guard) ActiveSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sessions {
		if !s.Completed() {
			n++
		}
	}
	return n
}

func (g *Guard) duplicateCheck(panelID string) (domain.DuplicateResult, error) {
	summaries, err := g.repo.FindByPanelID(panelID)
	if err != nil {
		return domain.DuplicateResult{}, err
	}
	return domain.CheckDuplicates(len(summaries)), nil
}

// lookupLocked resolves a session id, treating an expired session exactly
// like a missing one apart from the error value. Caller holds mu.
func (g *Guard) lookupLocked(id string) (*domain.Session, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if g.now().Sub(s.LastActivityAt) > g.cfg.SessionTimeout {
		delete(g.sessions, id)
		g.metrics.SessionsExpired.Inc()
		g.metrics.ActiveSessions.Dec()
		g.log.Info().Str("participant", id).Msg("session expired")
		return nil, ErrSessionExpired
	}

	return s, nil
}

// persistLocked snapshots the session and writes it out in the background.
// The in-memory record stays authoritative: a failed write is logged and
// counted, never surfaced to the participant. Caller holds mu.
func (g *Guard) persistLocked(s *domain.Session) {
	rec := storage.FromSession(s)
	responses := make(map[string]domain.Payload, len(s.Responses))
	for k, v := range s.Responses {
		responses[k] = v
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		if err := g.repo.SaveParticipant(rec); err != nil {
			g.metrics.PersistFailures.Inc()
			g.log.Error().Err(err).Str("participant", rec.ID).Msg("database save failed")
		}
		if g.sink != nil {
			if err := g.sink.Write(rec, responses); err != nil {
				g.metrics.PersistFailures.Inc()
				g.log.Error().Err(err).Str("participant", rec.ID).Msg("flat-file save failed")
			}
		}
	}()
}
