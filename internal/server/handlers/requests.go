package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/hydrocred/hydrocred/internal/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// largest ttlSeconds that converts to a time.Duration; the configured maximum is checked by the workflow
	maxTTLSeconds = int64(math.MaxInt64 / time.Second)
)

// request and responses

type SubmitRequest struct {
	Amount   int64           `json:"amount" example:"500"`
	Evidence evidence.Bundle `json:"evidence"`
}

type CertifyRequest struct {
	// TTLSeconds is the certification lifetime; omit it to use the server default
	TTLSeconds *int64 `json:"ttlSeconds,omitempty" example:"86400"`
}

type RejectRequest struct {
	Reason string `json:"reason" example:"meter readings do not cover the declared production window"`
}

type RequestResponse struct {
	RequestID            int64                 `json:"requestId" example:"42"`
	Producer             string                `json:"producer" example:"0x00000000000000000000000000000000000000a1"`
	ProducerJurisdiction identity.Jurisdiction `json:"producerJurisdiction"`
	Amount               int64                 `json:"amount" example:"500"`
	EvidenceFingerprint  string                `json:"evidenceFingerprint"`
	Evidence             evidence.Bundle       `json:"evidence"`
	Status               requests.Status       `json:"status" example:"PENDING"`
	Certifier            string                `json:"certifier,omitempty"`
	Expiry               *time.Time            `json:"expiry,omitempty"`
	RejectionReason      string                `json:"rejectionReason,omitempty"`
	Settlement           *requests.Settlement  `json:"settlement,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	CertifiedAt          *time.Time            `json:"certifiedAt,omitempty"`
	MintedAt             *time.Time            `json:"mintedAt,omitempty"`
	RejectedAt           *time.Time            `json:"rejectedAt,omitempty"`
}

type ListResponse struct {
	Requests []RequestResponse `json:"requests"`

	// NextAfter is passed as the after parameter to fetch the next page; absent on the last page
	NextAfter *int64 `json:"nextAfter,omitempty"`
}

type CertifyResponse struct {
	Request   RequestResponse       `json:"request"`
	Domain    certification.Domain  `json:"domain"`
	Payload   certification.Payload `json:"payload"`
	Signature string                `json:"signature" example:"0x5d2c...1b"`
}

type ClaimResponse struct {
	Request         RequestResponse `json:"request"`
	SettlementRef   string          `json:"settlementRef"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	BlockNumber     int64           `json:"blockNumber,omitempty"`

	// Reconciled is set when the settlement had landed on an earlier attempt
	Reconciled bool `json:"reconciled"`
}

// AuditReader returns the audit trail of a request.
type AuditReader interface {
	ListByRequest(ctx context.Context, requestID int64) ([]audit.Event, error)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func toRequestResponse(r requests.ProductionRequest) RequestResponse {
	resp := RequestResponse{
		RequestID:            r.ID,
		Producer:             r.Producer.Hex(),
		ProducerJurisdiction: r.ProducerJurisdiction,
		Amount:               r.Amount,
		EvidenceFingerprint:  r.EvidenceFingerprint,
		Evidence:             r.Evidence.Strip(),
		Status:               r.Status,
		Expiry:               optionalTime(r.Expiry),
		RejectionReason:      r.RejectionReason,
		Settlement:           r.Settlement,
		CreatedAt:            r.CreatedAt.UTC(),
		CertifiedAt:          optionalTime(r.CertifiedAt),
		MintedAt:             optionalTime(r.MintedAt),
		RejectedAt:           optionalTime(r.RejectedAt),
	}
	if r.Certifier != (common.Address{}) {
		resp.Certifier = r.Certifier.Hex()
	}
	return resp
}

// sessionWallet returns the wallet of the authenticated caller.
func sessionWallet(r *http.Request) (common.Address, error) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return common.Address{}, api.NewUnauthorizedError("no authenticated session")
	}
	return session.Wallet, nil
}

func requestIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "requestId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, api.NewMalformedRequestError(fmt.Sprintf("invalid request id %q", raw))
	}
	logger.ContextWithLogAttrs(r.Context(), slog.Int64("request_id", id))
	return id, nil
}

// HandleSubmitRequest godoc
//
//	@Summary		Submit a production request
//	@Description	Records a producer's claim that a production batch occurred. The caller must be a verified producer.
//	@Description
//	@Description	The evidence fingerprint is computed from the document checksums and the metadata, independent of
//	@Description	document order and JSON key order. Document content is optional; when supplied its SHA-256 must
//	@Description	match the declared checksum.
//	@Tags			Requests
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		SubmitRequest	true	"Amount and evidence"
//	@Success		201		{object}	RequestResponse
//	@Failure		400		{object}	api.ErrorResponse	"Invalid amount or evidence"
//	@Failure		401		{object}	api.ErrorResponse
//	@Failure		403		{object}	api.ErrorResponse	"Caller is not a verified producer"
//	@Router			/v1/requests [post]
func HandleSubmitRequest(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req SubmitRequest
		if err := api.DecodeJSONBody(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		created, err := ctl.Submit(r.Context(), wallet, req.Amount, req.Evidence)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		logger.ContextWithLogAttrs(r.Context(), slog.Int64("request_id", created.ID))
		w.Header().Set("Location", fmt.Sprintf("/v1/requests/%d", created.ID))
		api.RespondWithJSONPayload(w, http.StatusCreated, toRequestResponse(created))
	}
}

// HandleListRequests godoc
//
//	@Summary		List production requests
//	@Description	Producers see their own requests. Certifying authorities and auditors see the requests in their
//	@Description	jurisdiction; the country/state/city parameters narrow it further.
//	@Description
//	@Description	Results are ordered by request id. Use nextAfter from the response to fetch the next page.
//	@Tags			Requests
//	@Produce		json
//	@Security		BearerAuth
//	@Param			status		query		string	false	"PENDING, CERTIFIED, REJECTED or MINTED"
//	@Param			producer	query		string	false	"Producer wallet address"
//	@Param			country		query		string	false	"Producer country"
//	@Param			state		query		string	false	"Producer state"
//	@Param			city		query		string	false	"Producer city"
//	@Param			expired		query		bool	false	"Only certified requests whose certification has expired"
//	@Param			after		query		int		false	"Return requests with an id greater than this"
//	@Param			limit		query		int		false	"Page size (default 50, max 200)"
//	@Success		200			{object}	ListResponse
//	@Failure		400			{object}	api.ErrorResponse
//	@Failure		403			{object}	api.ErrorResponse	"Filter outside the caller's jurisdiction"
//	@Router			/v1/requests [get]
func HandleListRequests(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		found, err := ctl.List(r.Context(), wallet, filter)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		resp := ListResponse{Requests: make([]RequestResponse, 0, len(found))}
		for _, req := range found {
			resp.Requests = append(resp.Requests, toRequestResponse(req))
		}
		if len(found) == filter.Limit {
			next := found[len(found)-1].ID
			resp.NextAfter = &next
		}
		api.RespondWithJSONPayload(w, http.StatusOK, resp)
	}
}

func parseListFilter(r *http.Request) (requests.Filter, error) {
	q := r.URL.Query()
	filter := requests.Filter{
		Jurisdiction: identity.Jurisdiction{
			Country: q.Get("country"),
			State:   q.Get("state"),
			City:    q.Get("city"),
		},
		Limit: defaultListLimit,
	}
	if filter.Jurisdiction.Depth() < 0 {
		return filter, api.NewValidationError("jurisdiction filters must be given from country downwards")
	}

	if s := q.Get("status"); s != "" {
		status, err := requests.ParseStatus(strings.ToUpper(s))
		if err != nil {
			return filter, api.NewValidationError(fmt.Sprintf("unknown status %q", s))
		}
		filter.Status = status
	}
	if p := q.Get("producer"); p != "" {
		producer, err := identity.ParseAddress(p)
		if err != nil {
			return filter, api.NewValidationError(fmt.Sprintf("invalid producer address %q", p))
		}
		filter.Producer = &producer
	}
	if e := q.Get("expired"); e != "" {
		expired, err := strconv.ParseBool(e)
		if err != nil {
			return filter, api.NewValidationError(fmt.Sprintf("invalid expired flag %q", e))
		}
		if expired {
			now := time.Now()
			filter.ExpiredAsOf = &now
		}
	}
	if a := q.Get("after"); a != "" {
		after, err := strconv.ParseInt(a, 10, 64)
		if err != nil || after < 0 {
			return filter, api.NewValidationError(fmt.Sprintf("invalid after cursor %q", a))
		}
		filter.AfterID = after
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filter, api.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		}
		filter.Limit = limit
	}
	return filter, nil
}

// HandleGetRequest godoc
//
//	@Summary		Get a production request
//	@Description	Visible to the producer who submitted it and to authorities and auditors whose jurisdiction covers
//	@Description	the producer.
//	@Tags			Requests
//	@Produce		json
//	@Security		BearerAuth
//	@Param			requestId	path		int	true	"Request id"
//	@Success		200			{object}	RequestResponse
//	@Failure		403			{object}	api.ErrorResponse
//	@Failure		404			{object}	api.ErrorResponse
//	@Router			/v1/requests/{requestId} [get]
func HandleGetRequest(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		id, err := requestIDParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		req, err := ctl.Get(r.Context(), id, wallet)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, toRequestResponse(req))
	}
}

// HandleCertifyRequest godoc
//
//	@Summary		Certify a production request
//	@Description	Signs the certification for a PENDING request on behalf of the calling authority and returns the
//	@Description	signed payload. The caller must be a verified authority whose role may certify producers and whose
//	@Description	jurisdiction covers the producer's.
//	@Description
//	@Description	Only one request per evidence batch can be certified; a second request for the same batch fails
//	@Description	with a duplicate batch error.
//	@Tags			Requests
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			requestId	path		int				true	"Request id"
//	@Param			request		body		CertifyRequest	false	"Certification lifetime"
//	@Success		200			{object}	CertifyResponse
//	@Failure		403			{object}	api.ErrorResponse	"Caller may not certify this producer"
//	@Failure		404			{object}	api.ErrorResponse
//	@Failure		409			{object}	api.ErrorResponse	"Request is not PENDING, or the batch is already certified"
//	@Router			/v1/requests/{requestId}/certify [post]
func HandleCertifyRequest(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		id, err := requestIDParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req CertifyRequest
		if r.ContentLength != 0 {
			if err := api.DecodeJSONBody(r, &req); err != nil {
				api.RespondWithErrorResponse(w, r, err)
				return
			}
		}
		var ttl time.Duration
		if req.TTLSeconds != nil {
			if *req.TTLSeconds < 1 {
				api.RespondWithErrorResponse(w, r, api.NewValidationError("ttlSeconds must be positive"))
				return
			}
			if *req.TTLSeconds > maxTTLSeconds {
				api.RespondWithErrorResponse(w, r, api.NewValidationError(fmt.Sprintf("ttlSeconds must not exceed %d", maxTTLSeconds)))
				return
			}
			ttl = time.Duration(*req.TTLSeconds) * time.Second
		}

		result, err := ctl.Certify(r.Context(), id, wallet, ttl)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusOK, CertifyResponse{
			Request:   toRequestResponse(result.Request),
			Domain:    result.Domain,
			Payload:   result.Payload,
			Signature: certification.EncodeSignature(result.Signature),
		})
	}
}

// HandleRejectRequest godoc
//
//	@Summary		Reject a production request
//	@Description	Moves a PENDING request to REJECTED. The same authorities that may certify a request may reject it.
//	@Tags			Requests
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			requestId	path		int				true	"Request id"
//	@Param			request		body		RejectRequest	true	"Reason"
//	@Success		200			{object}	RequestResponse
//	@Failure		400			{object}	api.ErrorResponse	"Missing reason"
//	@Failure		403			{object}	api.ErrorResponse
//	@Failure		409			{object}	api.ErrorResponse	"Request is not PENDING"
//	@Router			/v1/requests/{requestId}/reject [post]
func HandleRejectRequest(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		id, err := requestIDParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req RejectRequest
		if err := api.DecodeJSONBody(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		rejected, err := ctl.Reject(r.Context(), id, wallet, req.Reason)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, toRequestResponse(rejected))
	}
}

// HandleClaimMint godoc
//
//	@Summary		Claim the mint for a certified request
//	@Description	Hands the stored certification to the settlement ledger. Only the producer who submitted the
//	@Description	request may claim it, and only before the certification expires.
//	@Description
//	@Description	A 504 means the ledger did not answer in time: the settlement may or may not have landed. Retry the
//	@Description	claim; a settlement that landed earlier is reconciled and the request is marked MINTED.
//	@Tags			Requests
//	@Produce		json
//	@Security		BearerAuth
//	@Param			requestId	path		int	true	"Request id"
//	@Success		200			{object}	ClaimResponse
//	@Failure		403			{object}	api.ErrorResponse	"Caller is not the producer"
//	@Failure		409			{object}	api.ErrorResponse	"Request is not CERTIFIED"
//	@Failure		410			{object}	api.ErrorResponse	"Certification expired"
//	@Failure		422			{object}	api.ErrorResponse	"Ledger refused the settlement"
//	@Failure		504			{object}	api.ErrorResponse	"Settlement outcome unknown"
//	@Router			/v1/requests/{requestId}/claim [post]
func HandleClaimMint(ctl *workflow.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		id, err := requestIDParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		result, err := ctl.ClaimMint(r.Context(), id, wallet)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusOK, ClaimResponse{
			Request:         toRequestResponse(result.Request),
			SettlementRef:   result.Receipt.SettlementRef,
			TransactionHash: result.Receipt.TransactionHash,
			BlockNumber:     result.Receipt.BlockNumber,
			Reconciled:      result.Reconciled,
		})
	}
}

// HandleListRequestEvents godoc
//
//	@Summary		Get the audit trail of a request
//	@Description	Returns the audit events recorded for a request, oldest first. Visible to whoever may view the request.
//	@Tags			Requests
//	@Produce		json
//	@Security		BearerAuth
//	@Param			requestId	path		int	true	"Request id"
//	@Success		200			{array}		audit.Event
//	@Failure		403			{object}	api.ErrorResponse
//	@Failure		404			{object}	api.ErrorResponse
//	@Router			/v1/requests/{requestId}/events [get]
func HandleListRequestEvents(ctl *workflow.Controller, reader AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := sessionWallet(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		id, err := requestIDParam(r)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		if _, err := ctl.Get(r.Context(), id, wallet); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		events, err := reader.ListByRequest(r.Context(), id)
		if err != nil {
			api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to read audit trail"))
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		api.RespondWithJSONPayload(w, http.StatusOK, events)
	}
}
