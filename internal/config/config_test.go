package config

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_URGENT_RESOLUTION_HOURS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.SLA.Policy[domain.TicketPriorityUrgent].ResolutionHours; got != 8 {
		t.Fatalf("urgent resolution hours = %d, want 8", got)
	}
	if cfg.SLA.ReopenWindow() != 72*time.Hour {
		t.Fatalf("reopen window = %s", cfg.SLA.ReopenWindow())
	}
	if cfg.Bulk.Workers <= 0 || cfg.Bulk.MaxItems <= 0 {
		t.Fatalf("bulk defaults not applied: %+v", cfg.Bulk)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	t.Setenv("SLA_LOW_RESOLUTION_HOURS", "96")
	t.Setenv("SLA_LOW_ESCALATION_HOURS", "48")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	low := cfg.SLA.Policy[domain.TicketPriorityLow]
	if low.ResolutionHours != 96 || low.EscalationHours != 48 {
		t.Fatalf("low target = %+v", low)
	}
}

func TestLoadRejectsIncoherentPolicy(t *testing.T) {
	t.Setenv("SLA_HIGH_ESCALATION_HOURS", "30")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when escalation exceeds resolution")
	}
}
