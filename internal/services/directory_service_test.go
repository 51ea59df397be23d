package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"deskify/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAssignTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:assign_" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.Technician{},
		&models.SupportGroup{},
		&models.Ticket{},
		&models.TaxonomyValue{},
		&models.AssignmentRule{},
		&models.AssignmentRecord{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// seedGroup creates n technicians and one group containing all of them.
func seedGroup(t *testing.T, db *gorm.DB, tenant string, n int) (*models.SupportGroup, []models.Technician) {
	t.Helper()
	techs := make([]models.Technician, 0, n)
	for i := 0; i < n; i++ {
		techs = append(techs, models.Technician{
			Tenant:   tenant,
			FullName: "tech",
			IsActive: true,
			IsAuto:   true,
		})
	}
	if err := db.Create(&techs).Error; err != nil {
		t.Fatalf("seed technicians: %v", err)
	}
	group := &models.SupportGroup{Tenant: tenant, Name: "helpdesk", Members: techs}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group, techs
}

func TestDirectoryGetGroupByID(t *testing.T) {
	db := newAssignTestDB(t)
	svc := NewDirectoryService(db, nil)
	group, techs := seedGroup(t, db, "acme", 3)

	got, err := svc.GetGroupByID(context.Background(), "acme", group.ID)
	if err != nil {
		t.Fatalf("GetGroupByID failed: %v", err)
	}
	if len(got.Members) != len(techs) {
		t.Errorf("expected %d members, got %d", len(techs), len(got.Members))
	}

	// tenant isolation
	if _, err := svc.GetGroupByID(context.Background(), "other", group.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound across tenants, got %v", err)
	}
}

func TestDirectoryGetTechniciansByIDs(t *testing.T) {
	db := newAssignTestDB(t)
	svc := NewDirectoryService(db, nil)
	_, techs := seedGroup(t, db, "acme", 2)

	got, err := svc.GetTechniciansByIDs(context.Background(), []uint{techs[0].ID, techs[1].ID})
	if err != nil {
		t.Fatalf("GetTechniciansByIDs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 technicians, got %d", len(got))
	}

	// a missing id is an error, never silently dropped
	if _, err := svc.GetTechniciansByIDs(context.Background(), []uint{techs[0].ID, 9999}); err == nil {
		t.Error("expected error for missing technician id")
	}

	// empty input is a no-op
	got, err = svc.GetTechniciansByIDs(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("empty input: got (%v, %v)", got, err)
	}
}

func TestDirectoryMarkAssignedCAS(t *testing.T) {
	db := newAssignTestDB(t)
	svc := NewDirectoryService(db, nil)
	_, techs := seedGroup(t, db, "acme", 1)
	tech := techs[0]

	now := time.Now()
	if err := svc.MarkAssigned(context.Background(), tech.ID, "acme", nil, now); err != nil {
		t.Fatalf("first MarkAssigned failed: %v", err)
	}

	// the observed-nil precondition no longer holds
	err := svc.MarkAssigned(context.Background(), tech.ID, "acme", nil, time.Now())
	if !errors.Is(err, ErrAssignConflict) {
		t.Fatalf("expected ErrAssignConflict on stale precondition, got %v", err)
	}

	// re-read and swap on the current value succeeds
	var fresh models.Technician
	if err := db.First(&fresh, tech.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.LastTicketAt == nil {
		t.Fatal("LastTicketAt not persisted")
	}
	if err := svc.MarkAssigned(context.Background(), tech.ID, "acme", fresh.LastTicketAt, time.Now()); err != nil {
		t.Fatalf("MarkAssigned with current value failed: %v", err)
	}
}

func TestDirectoryMarkAssignedWrongTenant(t *testing.T) {
	db := newAssignTestDB(t)
	svc := NewDirectoryService(db, nil)
	_, techs := seedGroup(t, db, "acme", 1)

	err := svc.MarkAssigned(context.Background(), techs[0].ID, "other", nil, time.Now())
	if !errors.Is(err, ErrAssignConflict) {
		t.Errorf("wrong tenant must not match any row, got %v", err)
	}
}
