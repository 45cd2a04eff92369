package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
)

type OnboardRequest struct {
	WalletAddress string                `json:"walletAddress" example:"0x00000000000000000000000000000000000000a1"`
	Role          string                `json:"role" example:"PRODUCER"`
	Jurisdiction  identity.Jurisdiction `json:"jurisdiction"`
	Verified      bool                  `json:"verified"`
}

// HandleOnboardIdentity godoc
//
//	@Summary	Onboard an identity
//	@Description	Registers a wallet with a role and jurisdiction. Stands in for the external onboarding service in
//	@Description	development and test deployments.
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Param		identity	body		OnboardRequest	true	"Identity details"
//	@Success	201			{object}	IdentityResponse
//	@Failure	400			{object}	api.ErrorResponse	"Invalid request"
//	@Failure	409			{object}	api.ErrorResponse	"Wallet already registered"
//	@Router		/admin/identities [post]
func HandleOnboardIdentity(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OnboardRequest
		if err := api.DecodeJSONBody(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		address, err := identity.ParseAddress(req.WalletAddress)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		role, err := identity.ParseRole(req.Role)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		created, err := svc.Onboard(r.Context(), identity.Identity{
			Address:      address,
			Role:         role,
			Jurisdiction: req.Jurisdiction,
			Verified:     req.Verified,
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		logger.ContextRequestLogger(r.Context()).Info("identity onboarded",
			slog.String("wallet", created.Address.Hex()),
			slog.String("role", string(created.Role)))
		api.RespondWithJSONPayload(w, http.StatusCreated, toIdentityResponse(created))
	}
}
