// Package audit records one immutable event per workflow invocation.
//
// Sinks are append-only. A sink failure is logged by the Recorder and never changes the outcome of the
// operation being audited.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hydrocred/hydrocred/internal/logger"
)

type Action string

const (
	ActionSubmit          Action = "submit"
	ActionCertify         Action = "certify"
	ActionReject          Action = "reject"
	ActionClaimMint       Action = "claim_mint"
	ActionSetVerification Action = "set_verification"
	ActionOnboard         Action = "onboard"
)

// OutcomeSuccess is recorded for successful operations; failures record the error code.
const OutcomeSuccess = "success"

// Event is a single audit record.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Action     Action    `json:"action"`
	Actor      string    `json:"actor"`
	RequestID  *int64    `json:"requestId,omitempty"`
	Target     string    `json:"target,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEvent returns an event with a fresh id. Outcome defaults to OutcomeSuccess.
func NewEvent(action Action, actor string, occurredAt time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Action:     action,
		Actor:      actor,
		Outcome:    OutcomeSuccess,
		OccurredAt: occurredAt.UTC(),
	}
}

// ForRequest sets the target request id.
func (e Event) ForRequest(requestID int64) Event {
	e.RequestID = &requestID
	return e
}

type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Recorder writes events to a sink and logs (rather than returns) sink failures.
type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, event); err != nil {
		logger.ContextRequestLogger(ctx).Error("failed to record audit event",
			slog.String("event_id", event.ID.String()),
			slog.String("action", string(event.Action)),
			slog.String("outcome", event.Outcome),
			slog.String("error", err.Error()),
		)
	}
}
