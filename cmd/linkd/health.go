package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/journal"
	"github.com/rickgao/wslink/internal/router"
	"github.com/rickgao/wslink/internal/version"
)

type linkController interface {
	Stats() connection.Stats
	Reconnect()
}

type routerStatser interface {
	Stats() router.RouterStats
}

type journalStatser interface {
	Stats() journal.Metrics
}

type pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Components map[string]any `json:"components"`
}

// reconnectPath restarts a dormant or stuck link.
const reconnectPath = "/reconnect"

// newHealthHandler reports link state plus router and journal counters and
// serves POST /reconnect. The journal and pool may be nil.
func newHealthHandler(path string, link linkController, rtr routerStatser, jr journalStatser, db pinger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(reconnectPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		link.Reconnect()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "reconnecting",
			"state":  link.Stats().State.String(),
		})
	})

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats := link.Stats()
		health := healthResponse{
			Status:     linkStatus(stats),
			Version:    version.String(),
			Components: make(map[string]any),
		}

		linkInfo := map[string]any{
			"state":       stats.State.String(),
			"attempt":     stats.Attempt,
			"suspended":   stats.Suspended,
			"dials":       stats.Dials,
			"opens":       stats.Opens,
			"failures":    stats.Failures,
			"messages":    stats.Messages,
			"probes_sent": stats.ProbesSent,
		}
		if stats.State == connection.StateOpen {
			linkInfo["session"] = stats.Session.String()
		}
		if stats.NextDelay > 0 {
			linkInfo["next_delay"] = stats.NextDelay.String()
		}
		if stats.LastError != "" {
			linkInfo["last_error"] = stats.LastError
		}
		health.Components["link"] = linkInfo

		rs := rtr.Stats()
		health.Components["router"] = map[string]any{
			"received":     rs.MessagesReceived,
			"routed":       rs.MessagesRouted,
			"parse_errors": rs.ParseErrors,
			"unknown":      rs.UnknownMessages,
			"pending":      rs.Mailbox.Pending,
		}

		if jr != nil {
			js := jr.Stats()
			health.Components["journal"] = map[string]any{
				"recorded": js.Recorded,
				"inserts":  js.Inserts,
				"dropped":  js.Dropped,
				"errors":   js.Errors,
			}
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

// linkStatus maps manager state to a health status.
func linkStatus(s connection.Stats) string {
	switch {
	case s.State == connection.StateOpen:
		return "healthy"
	case s.Suspended:
		return "suspended"
	case s.State == connection.StateIdle:
		return "unhealthy"
	default:
		return "degraded"
	}
}
