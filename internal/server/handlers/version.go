package handlers

import (
	"net/http"
	"runtime"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/version"
)

const serviceName = "hydrocred-server"

type VersionResponse struct {
	Service string `json:"service" example:"hydrocred-server"`
	version.Info
	GoVersion string `json:"go_version" example:"go1.25.4"`
}

// HandleVersion godoc
//
//	@Summary		Build information
//	@Description	Returns the release, commit and build date of the running server.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	VersionResponse
//	@Router			/version [get]
func HandleVersion(info version.Info) http.HandlerFunc {
	resp := VersionResponse{Service: serviceName, Info: info, GoVersion: runtime.Version()}
	return func(w http.ResponseWriter, r *http.Request) {
		api.RespondWithJSONPayload(w, http.StatusOK, resp)
	}
}
