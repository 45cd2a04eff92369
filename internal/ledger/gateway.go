package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/logger"
)

// GatewayConfig configures the HTTP settlement gateway client.
type GatewayConfig struct {
	URL       string
	AuthToken string

	// Timeout bounds a single HTTP exchange. Callers should also bound Settle with a context deadline.
	Timeout time.Duration

	// HTTPClient replaces the default transport (tests use this to install httpmock).
	HTTPClient *http.Client
}

// GatewayClient is a Settler that talks to a settlement gateway over HTTP.
type GatewayClient struct {
	client *resty.Client
}

type certificationBody struct {
	Producer  string `json:"producer"`
	Amount    string `json:"amount"`
	RequestID string `json:"requestId"`
	Expiry    string `json:"expiry"`
	Certifier string `json:"certifier"`
}

type settleRequest struct {
	Certification  certificationBody `json:"certification"`
	Signature      string            `json:"signature"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

type receiptBody struct {
	RequestID       string `json:"requestId"`
	SettlementRef   string `json:"settlementRef"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     int64  `json:"blockNumber"`
}

type rejectionBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func NewGatewayClient(cfg GatewayConfig) (*GatewayClient, error) {
	url := strings.TrimSuffix(cfg.URL, "/")
	if url == "" {
		return nil, NewValidationError("ledger gateway URL is required")
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}

	client.SetBaseURL(url)
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.ContextRequestLogger(req.Context()).Debug("ledger request",
			slog.String("method", req.Method),
			slog.String("url", req.URL),
		)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.ContextRequestLogger(res.Request.Context()).Debug("ledger response",
			slog.String("method", res.Request.Method),
			slog.String("url", res.Request.URL),
			slog.Int("status", res.StatusCode()),
			slog.Duration("duration", res.Time()),
		)
		return nil
	})

	return &GatewayClient{client: client}, nil
}

// Settle posts the certification to /v1/settlements.
func (g *GatewayClient) Settle(ctx context.Context, payload certification.Payload, signature []byte) (Receipt, error) {
	body := settleRequest{
		Certification: certificationBody{
			Producer:  payload.Producer.Hex(),
			Amount:    strconv.FormatInt(payload.Amount, 10),
			RequestID: strconv.FormatInt(payload.RequestID, 10),
			Expiry:    strconv.FormatInt(payload.Expiry, 10),
			Certifier: payload.Certifier.Hex(),
		},
		Signature:      certification.EncodeSignature(signature),
		IdempotencyKey: IdempotencyKey(payload.RequestID, signature),
	}

	var (
		out receiptBody
		rej rejectionBody
	)
	res, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", body.IdempotencyKey).
		SetBody(body).
		SetResult(&out).
		SetError(&rej).
		Post("/v1/settlements")
	if err != nil {
		return Receipt{}, WrapUnknownError(err, "settlement request failed")
	}

	switch status := res.StatusCode(); {
	case res.IsSuccess():
		if out.SettlementRef == "" {
			return Receipt{}, NewUnknownError("settlement gateway returned no settlement reference")
		}
		return toReceipt(payload.RequestID, out), nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return Receipt{}, NewUnknownError(fmt.Sprintf("settlement gateway returned %d", status))
	default:
		msg := rej.Message
		if msg == "" {
			msg = fmt.Sprintf("settlement gateway rejected the certification with status %d", status)
		}
		return Receipt{}, NewRejectionError(ParseReason(rej.Reason), msg)
	}
}

// Lookup fetches /v1/settlements/{requestId}.
func (g *GatewayClient) Lookup(ctx context.Context, requestID int64) (Receipt, error) {
	var out receiptBody
	res, err := g.client.R().
		SetContext(ctx).
		SetPathParam("requestId", strconv.FormatInt(requestID, 10)).
		SetResult(&out).
		Get("/v1/settlements/{requestId}")
	if err != nil {
		return Receipt{}, WrapUnknownError(err, "settlement lookup failed")
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		return Receipt{}, NewNotFoundError(requestID)
	case !res.IsSuccess():
		return Receipt{}, NewUnknownError(fmt.Sprintf("settlement lookup returned %d", res.StatusCode()))
	case out.SettlementRef == "":
		return Receipt{}, NewNotFoundError(requestID)
	}
	if out.RequestID != "" && out.RequestID != strconv.FormatInt(requestID, 10) {
		return Receipt{}, NewUnknownError(fmt.Sprintf("settlement lookup for request %d returned request %s", requestID, out.RequestID))
	}
	return toReceipt(requestID, out), nil
}

func toReceipt(requestID int64, b receiptBody) Receipt {
	return Receipt{
		RequestID:       requestID,
		SettlementRef:   b.SettlementRef,
		TransactionHash: b.TransactionHash,
		BlockNumber:     b.BlockNumber,
	}
}
