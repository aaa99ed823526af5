package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mgranvik/ladle/internal/config"
	"github.com/mgranvik/ladle/internal/guard"
	"github.com/mgranvik/ladle/internal/httpapi"
	"github.com/mgranvik/ladle/internal/metrics"
	"github.com/mgranvik/ladle/internal/recipes"
	"github.com/mgranvik/ladle/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := newLogger("info", true)
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg.LogLevel, cfg.LogPretty)

	catalog, err := recipes.LoadCatalog(cfg.RecipesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RecipesPath).Msg("load recipe catalog")
	}
	log.Info().Int("recipes", catalog.Len()).Strs("categories", catalog.Categories()).Msg("recipe catalog loaded")

	repo, err := openRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver).Msg("open participant store")
	}
	defer repo.Close()

	sink, err := storage.NewResponseSink(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("open response sink")
	}

	m := metrics.New()
	g := guard.New(repo, sink, recipes.NewProvider(catalog), guard.Config{
		SessionTimeout:  cfg.SessionTimeout,
		MinResponseTime: cfg.MinResponseTime,
		MaxResponseTime: cfg.MaxResponseTime,
	}, log, m)
	defer g.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/start", startSurvey(g, log))
	r.Get("/session", getSession(g))
	r.Get("/report", qualityReport(g))

	r.Get("/{step}", viewStep(g, catalog, cfg.CompletionURL))
	r.Post("/{step}", submitStep(g, log))

	r.Get("/admin/quality", adminQuality(repo))
	r.Get("/admin/participants", adminParticipants(repo))
	r.Get("/admin/load", httpapi.StreamLoad(repo, g.ActiveSessions, 30*time.Second, log))
	r.Handle("/metrics", m.Handler())

	r.Get("/", serveIndex(cfg.StaticDir))
	fs := http.FileServer(http.Dir(cfg.StaticDir))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	log.Info().Str("addr", cfg.Addr).Msg("listening")
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func openRepository(cfg *config.Config) (storage.Repository, error) {
	if cfg.Driver == "postgres" {
		return storage.NewPostgresRepository(cfg.DSN)
	}
	return storage.NewSQLiteRepository(cfg.DSN)
}

func serveIndex(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, staticDir+"/index.html")
	}
}
