package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deskify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrAssignConflict markAssigned 的 CAS 检测到并发更新
var ErrAssignConflict = errors.New("technician was assigned concurrently")

// ErrGroupNotFound 支持组不存在或不属于该租户
var ErrGroupNotFound = errors.New("support group not found")

// DirectoryService exposes the group roster and technician directory the
// assignment engine reads from, plus the single mutation it needs
// (MarkAssigned). Everything else about users/groups lives elsewhere.
type DirectoryService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDirectoryService(db *gorm.DB, logger *logrus.Logger) *DirectoryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DirectoryService{db: db, logger: logger}
}

// GetGroupByID returns the group and its live roster.
func (s *DirectoryService) GetGroupByID(ctx context.Context, tenant string, groupID uint) (*models.SupportGroup, error) {
	var group models.SupportGroup
	err := s.db.WithContext(ctx).
		Preload("Members").
		Where("tenant = ? AND id = ?", tenant, groupID).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}
	return &group, nil
}

// GetTechniciansByIDs re-fetches technicians by id to refresh their fairness
// signal. A missing id is a service error, not silently dropped.
func (s *DirectoryService) GetTechniciansByIDs(ctx context.Context, ids []uint) ([]models.Technician, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var techs []models.Technician
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&techs).Error; err != nil {
		return nil, fmt.Errorf("load technicians: %w", err)
	}
	if len(techs) != len(ids) {
		found := make(map[uint]bool, len(techs))
		for _, t := range techs {
			found[t.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("technician %d not found", id)
			}
		}
	}
	return techs, nil
}

// MarkAssigned advances a technician's LastTicketAt via compare-and-swap on
// the previously observed value. Returns ErrAssignConflict when another
// request won the race; callers decide whether to retry.
func (s *DirectoryService) MarkAssigned(ctx context.Context, techID uint, tenant string, prev *time.Time, now time.Time) error {
	q := s.db.WithContext(ctx).Model(&models.Technician{}).
		Where("id = ? AND tenant = ?", techID, tenant)
	if prev == nil {
		q = q.Where("last_ticket_at IS NULL")
	} else {
		q = q.Where("last_ticket_at = ?", *prev)
	}
	res := q.Update("last_ticket_at", now)
	if res.Error != nil {
		return fmt.Errorf("mark assigned %d: %w", techID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAssignConflict
	}
	return nil
}
