package handlers

import (
	"net/http"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/certification"
)

// DomainResponse publishes what a verifier needs to check a certification offline.
type DomainResponse struct {
	Domain      certification.Domain `json:"domain"`
	PrimaryType string               `json:"primaryType" example:"Certification"`

	// Certifiers are the authorities this deployment signs for
	Certifiers []string `json:"certifiers"`
}

// HandleCertificationDomain godoc
//
//	@Summary		Get the certification signing domain
//	@Description	Returns the EIP-712 domain certifications are signed under and the certifier addresses whose keys
//	@Description	this deployment holds.
//	@Description
//	@Description	Use this to verify a certification signature without calling the API.
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	DomainResponse
//	@Router			/.well-known/certification-domain.json [get]
func HandleCertificationDomain(domain certification.Domain, certifiers []string) http.HandlerFunc {
	response := DomainResponse{
		Domain:      domain,
		PrimaryType: certification.PrimaryType,
		Certifiers:  certifiers,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		api.RespondWithJSONPayload(w, http.StatusOK, response)
	}
}
