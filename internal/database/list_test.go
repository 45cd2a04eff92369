package database

import (
	"strings"
	"testing"
	"time"
)

func TestBuildListProductionRequestsQuery(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		filter       ListProductionRequestsFilter
		wantContains []string
		wantArgs     int
	}{
		{
			name:         "no filter uses default limit",
			filter:       ListProductionRequestsFilter{},
			wantContains: []string{"FROM production_requests", "ORDER BY id", "LIMIT 100"},
			wantArgs:     0,
		},
		{
			name:         "producer and status",
			filter:       ListProductionRequestsFilter{Producer: "0xabc", Status: "PENDING", Limit: 10},
			wantContains: []string{"producer = $1", "status = $2", "LIMIT 10"},
			wantArgs:     2,
		},
		{
			name:         "jurisdiction prefix",
			filter:       ListProductionRequestsFilter{Country: "IN", State: "Gujarat"},
			wantContains: []string{"lower(producer_country) = lower($1)", "lower(producer_state) = lower($2)"},
			wantArgs:     2,
		},
		{
			name:         "expired certifications",
			filter:       ListProductionRequestsFilter{ExpiredAsOf: &asOf},
			wantContains: []string{"status = $1", "expiry < $2"},
			wantArgs:     2,
		},
		{
			name:         "keyset cursor",
			filter:       ListProductionRequestsFilter{AfterID: 42},
			wantContains: []string{"id > $1"},
			wantArgs:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := BuildListProductionRequestsQuery(tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(sql, want) {
					t.Errorf("query %q does not contain %q", sql, want)
				}
			}
			if len(args) != tt.wantArgs {
				t.Errorf("expected %d args, got %d (%v)", tt.wantArgs, len(args), args)
			}
		})
	}
}
