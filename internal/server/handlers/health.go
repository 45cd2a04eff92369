package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/logger"
)

const readinessTimeout = 2 * time.Second

// ReadinessChecker reports whether the service's dependencies are reachable.
type ReadinessChecker interface {
	IsDatabaseRunning(ctx context.Context) (bool, error)
}

type ReadinessResponse struct {
	Status   string `json:"status" example:"ready"`
	Database string `json:"database" example:"up"`

	// CertifierKeys is the number of authorities this deployment can sign for. Zero is valid (submit/claim only).
	CertifierKeys int `json:"certifierKeys" example:"2"`
}

// HandleHealth godoc
//
//	@Summary		Liveness check
//	@Description	Returns OK while the process is serving HTTP.
//	@Tags			Common
//	@Produce		plain
//	@Success		200	{string}	string	"OK"
//	@Router			/health/live [get]
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReadiness godoc
//
//	@Summary		Readiness check
//	@Description	Reports whether the request store is reachable and how many certifier keys are loaded.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	ReadinessResponse
//	@Failure		503	{object}	ReadinessResponse
//	@Router			/health/ready [get]
func HandleReadiness(checker ReadinessChecker, certifierKeys int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		resp := ReadinessResponse{Status: "ready", Database: "up", CertifierKeys: certifierKeys}
		if _, err := checker.IsDatabaseRunning(ctx); err != nil {
			logger.ContextRequestLogger(r.Context()).Warn("readiness check failed",
				slog.String("dependency", "database"),
				slog.String("error", err.Error()))
			resp.Status = "not ready"
			resp.Database = "down"
			api.RespondWithJSONPayload(w, http.StatusServiceUnavailable, resp)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, resp)
	}
}
