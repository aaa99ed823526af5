package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mgranvik/ladle/internal/storage"
)

// LoadSnapshot is one frame of the admin monitoring stream.
type LoadSnapshot struct {
	Time           time.Time               `json:"time"`
	ActiveSessions int                     `json:"active_sessions"`
	Quality        *storage.QualityMetrics `json:"quality"`
}

// StreamLoad pushes a quality-metrics snapshot over SSE on every tick so
// an operator can watch participant load during a live study.
func StreamLoad(repo storage.Repository, active func() int, interval time.Duration, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		send := func() {
			quality, err := repo.QualityMetrics()
			if err != nil {
				log.Error().Err(err).Msg("load stream: quality metrics query failed")
				return
			}

			snap := LoadSnapshot{
				Time:           time.Now().UTC(),
				ActiveSessions: active(),
				Quality:        quality,
			}

			data, _ := json.Marshal(snap)
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}

		send()
		for {
			select {
			case <-ticker.C:
				send()
			case <-r.Context().Done():
				return
			}
		}
	}
}
