package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util"
)

func TestMapPgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"no rows", pgx.ErrNoRows, apperrors.CodeNotFound},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "tickets_ticket_number_key"}, apperrors.CodeConflict},
		{"lock timeout", fmt.Errorf("lock ticket: %w", &pgconn.PgError{Code: pgLockNotAvailable}), apperrors.CodeConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, apperrors.CodeConcurrencyConflict},
		{"cancelled", context.Canceled, apperrors.CodeCancelled},
		{"other", errors.New("connection reset"), apperrors.CodePersistence},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapPgError(tc.err, "ticket", nil)
			if !apperrors.IsKind(got, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, got)
			}
		})
	}
}

func TestEscalationCandidatesQuery(t *testing.T) {
	lowCutoff := t0
	urgentCutoff := t0.Add(6 * time.Hour)
	query, args := escalationCandidatesQuery(map[domain.TicketPriority]time.Time{
		domain.TicketPriorityUrgent: urgentCutoff,
		domain.TicketPriorityLow:    lowCutoff,
	}, []string{"open"}, 50)

	for _, fragment := range []string{
		"created_at < CASE priority",
		"WHEN 'low' THEN $3::timestamptz",
		"WHEN 'urgent' THEN $4::timestamptz",
		"LIMIT $2",
	} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("query missing %q:\n%s", fragment, query)
		}
	}
	if strings.Contains(query, "'high'") || strings.Contains(query, "'medium'") {
		t.Fatalf("priorities without cutoff must not match:\n%s", query)
	}
	if len(args) != 4 || args[1] != 50 || args[2] != lowCutoff || args[3] != urgentCutoff {
		t.Fatalf("unexpected args %v", args)
	}
}
