package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthChecker is the storage probe behind /health.
type HealthChecker interface {
	PingContext(ctx context.Context) error
	MigrationVersion() (uint, bool, error)
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Migration uint   `json:"migration"`
	RequestID string `json:"requestId,omitempty"`
}

// HealthHandler reports 200 when the database answers and its schema is
// clean, 503 otherwise.
func HealthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: "ok", RequestID: RequestID(r.Context())}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("Health check: database unreachable")
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		} else if version, dirty, err := db.MigrationVersion(); err != nil || dirty {
			log.Ctx(r.Context()).Warn().Err(err).Bool("dirty", dirty).Msg("Health check: schema not ready")
			resp.Status, resp.Database = "degraded", "schema"
			status = http.StatusServiceUnavailable
		} else {
			resp.Migration = version
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write health response")
		}
	}
}
