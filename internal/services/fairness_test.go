package services

import (
	"errors"
	"testing"
	"time"

	"deskify/internal/models"
)

func ts(s string) *time.Time {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func TestSelectTechnicianLeastRecent(t *testing.T) {
	pool := []models.Technician{
		{ID: 1, IsActive: true, LastTicketAt: ts("2026-08-01T10:00:00Z")},
		{ID: 2, IsActive: true, LastTicketAt: ts("2026-07-01T10:00:00Z")},
		{ID: 3, IsActive: true, LastTicketAt: ts("2026-08-15T10:00:00Z")},
	}
	chosen, err := SelectTechnician(pool)
	if err != nil {
		t.Fatalf("SelectTechnician failed: %v", err)
	}
	if chosen.ID != 2 {
		t.Errorf("expected least recently assigned (2), got %d", chosen.ID)
	}
}

func TestSelectTechnicianNeverAssignedFirst(t *testing.T) {
	pool := []models.Technician{
		{ID: 1, IsActive: true, LastTicketAt: ts("2020-01-01T00:00:00Z")},
		{ID: 2, IsActive: true, LastTicketAt: nil},
	}
	chosen, err := SelectTechnician(pool)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.ID != 2 {
		t.Errorf("nil LastTicketAt must sort before any timestamp, got %d", chosen.ID)
	}
}

func TestSelectTechnicianTieBreaksToLowestID(t *testing.T) {
	same := ts("2026-08-01T10:00:00Z")
	pool := []models.Technician{
		{ID: 7, IsActive: true, LastTicketAt: same},
		{ID: 3, IsActive: true, LastTicketAt: same},
		{ID: 5, IsActive: true, LastTicketAt: same},
	}
	chosen, err := SelectTechnician(pool)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.ID != 3 {
		t.Errorf("tie must break to lowest id, got %d", chosen.ID)
	}

	// pool order must not influence the result
	pool[0], pool[2] = pool[2], pool[0]
	again, _ := SelectTechnician(pool)
	if again.ID != 3 {
		t.Errorf("selection depends on pool order, got %d", again.ID)
	}
}

func TestSelectTechnicianSkipsInactive(t *testing.T) {
	pool := []models.Technician{
		{ID: 1, IsActive: false, LastTicketAt: nil},
		{ID: 2, IsActive: true, LastTicketAt: ts("2026-08-01T10:00:00Z")},
	}
	chosen, err := SelectTechnician(pool)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.ID != 2 {
		t.Errorf("inactive technician must be skipped, got %d", chosen.ID)
	}
}

func TestSelectTechnicianRotationEligibility(t *testing.T) {
	// 每一种 is_auto / last_ticket_at 组合都有轮转资格
	tests := []struct {
		name string
		tech models.Technician
	}{
		{"opted out with history", models.Technician{ID: 1, IsActive: true, IsAuto: false, LastTicketAt: ts("2026-08-01T10:00:00Z")}},
		{"opted out never assigned", models.Technician{ID: 2, IsActive: true, IsAuto: false}},
		{"auto never assigned", models.Technician{ID: 3, IsActive: true, IsAuto: true}},
		{"auto with history", models.Technician{ID: 4, IsActive: true, IsAuto: true, LastTicketAt: ts("2026-08-01T10:00:00Z")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, err := SelectTechnician([]models.Technician{tt.tech})
			if err != nil {
				t.Fatalf("technician must be eligible: %v", err)
			}
			if chosen.ID != tt.tech.ID {
				t.Errorf("got %d, want %d", chosen.ID, tt.tech.ID)
			}
		})
	}

	// 资格过滤不改变公平排序
	pool := []models.Technician{
		{ID: 1, IsActive: true, IsAuto: true, LastTicketAt: ts("2026-08-01T10:00:00Z")},
		{ID: 2, IsActive: true, IsAuto: false, LastTicketAt: ts("2026-07-01T10:00:00Z")},
	}
	chosen, err := SelectTechnician(pool)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.ID != 2 {
		t.Errorf("least recent must still win regardless of is_auto, got %d", chosen.ID)
	}
}

func TestSelectTechnicianEmptyPool(t *testing.T) {
	if _, err := SelectTechnician(nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
	onlyInactive := []models.Technician{{ID: 1, IsActive: false}}
	if _, err := SelectTechnician(onlyInactive); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates for all-inactive pool, got %v", err)
	}
}
