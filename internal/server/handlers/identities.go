package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
)

type VerificationRequest struct {
	Verified *bool `json:"verified" example:"true"`
}

type IdentityResponse struct {
	WalletAddress string                `json:"walletAddress" example:"0x00000000000000000000000000000000000000a1"`
	Role          identity.Role         `json:"role" example:"PRODUCER"`
	Jurisdiction  identity.Jurisdiction `json:"jurisdiction"`
	Verified      bool                  `json:"verified"`
}

func toIdentityResponse(i identity.Identity) IdentityResponse {
	return IdentityResponse{
		WalletAddress: i.Address.Hex(),
		Role:          i.Role,
		Jurisdiction:  i.Jurisdiction,
		Verified:      i.Verified,
	}
}

func walletParam(r *http.Request) (common.Address, error) {
	raw := chi.URLParam(r, "wallet")
	address, err := identity.ParseAddress(raw)
	if err != nil {
		return common.Address{}, api.NewMalformedRequestError(fmt.Sprintf("invalid wallet address %q", raw))
	}
	logger.ContextWithLogAttrs(r.Context(), slog.String("target", address.Hex()))
	return address, nil
}

// HandleGetIdentity godoc
//
//	@Summary		Get an identity
//	@Description	Returns the directory entry for a wallet. Callers can always read their own entry; other entries are
//	@Description	visible to identities that may administer them or whose jurisdiction covers them.
//	@Tags			Identities
//	@Produce		json
//	@Security		BearerAuth
//	@Param			wallet	path		string	true	"Wallet address"
//	@Success		200		{object}	IdentityResponse
//	@Failure		403		{object}	api.ErrorResponse
//	@Failure		404		{object}	api.ErrorResponse
//	@Router			/v1/identities/{wallet} [get]
func HandleGetIdentity(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		target, err := walletParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		found, err := svc.Lookup(r.Context(), target)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		if caller != target {
			viewer, err := svc.Lookup(r.Context(), caller)
			if err != nil {
				if identity.ErrorCodeOf(err) == identity.ErrCodeNotFound {
					err = api.NewForbiddenError("caller is not a registered identity")
				}
				api.RespondWithErrorResponse(w, r, err)
				return
			}
			if !identity.CanAdminister(viewer, found) && !identity.CanView(viewer, found.Jurisdiction) {
				api.RespondWithErrorResponse(w, r, api.NewForbiddenError("identity is outside the caller's jurisdiction"))
				return
			}
		}

		api.RespondWithJSONPayload(w, http.StatusOK, toIdentityResponse(found))
	}
}

// HandleSetVerification godoc
//
//	@Summary		Set an identity's verification flag
//	@Description	Verifies or suspends an identity. The caller must be a verified identity that ranks above the target
//	@Description	and whose jurisdiction covers the target's.
//	@Tags			Identities
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			wallet	path		string				true	"Wallet address"
//	@Param			request	body		VerificationRequest	true	"Verification flag"
//	@Success		200		{object}	IdentityResponse
//	@Failure		400		{object}	api.ErrorResponse
//	@Failure		403		{object}	api.ErrorResponse
//	@Failure		404		{object}	api.ErrorResponse
//	@Router			/v1/identities/{wallet}/verification [put]
func HandleSetVerification(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		target, err := walletParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req VerificationRequest
		if err := api.DecodeJSONBody(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		if req.Verified == nil {
			api.RespondWithErrorResponse(w, r, api.NewValidationError("verified is required"))
			return
		}

		updated, err := svc.SetVerification(r.Context(), caller, target, *req.Verified)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, toIdentityResponse(updated))
	}
}
