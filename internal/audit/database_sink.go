package audit

import (
	"context"
	"fmt"

	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// DatabaseSink appends events to the audit_events table.
type DatabaseSink struct {
	queries *database.Queries
}

func NewDatabaseSink(queries *database.Queries) *DatabaseSink {
	return &DatabaseSink{queries: queries}
}

func (s *DatabaseSink) Record(ctx context.Context, e Event) error {
	err := s.queries.CreateAuditEvent(ctx, database.CreateAuditEventParams{
		ID:         e.ID,
		Action:     string(e.Action),
		Actor:      e.Actor,
		RequestID:  e.RequestID,
		Target:     optional(e.Target),
		Outcome:    e.Outcome,
		Detail:     optional(e.Detail),
		OccurredAt: pgtype.Timestamptz{Time: e.OccurredAt, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListByRequest returns the events recorded for a request, oldest first.
func (s *DatabaseSink) ListByRequest(ctx context.Context, requestID int64) ([]Event, error) {
	rows, err := s.queries.ListAuditEventsByRequest(ctx, &requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		e := Event{
			ID:         row.ID,
			Action:     Action(row.Action),
			Actor:      row.Actor,
			RequestID:  row.RequestID,
			Outcome:    row.Outcome,
			OccurredAt: row.OccurredAt.Time,
		}
		if row.Target != nil {
			e.Target = *row.Target
		}
		if row.Detail != nil {
			e.Detail = *row.Detail
		}
		events = append(events, e)
	}
	return events, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
