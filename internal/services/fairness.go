package services

import (
	"errors"

	"deskify/internal/models"
)

// ErrNoCandidates 候选池为空（全部不活跃或组无成员）
var ErrNoCandidates = errors.New("no eligible technician in candidate pool")

// SelectTechnician picks the least-recently-assigned technician from the
// pool, approximating round-robin. Inactive technicians are skipped; a
// technician who has never been assigned (nil LastTicketAt) sorts earliest.
// Ties on the timestamp break to the lowest technician id so the choice is
// deterministic regardless of pool order.
func SelectTechnician(candidates []models.Technician) (*models.Technician, error) {
	var best *models.Technician
	for i := range candidates {
		t := &candidates[i]
		if !t.IsActive || !eligibleForRotation(t) {
			continue
		}
		if best == nil || earlierThan(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoCandidates
	}
	return best, nil
}

// eligibleForRotation 轮转资格：未开启 is_auto 的、从未被指派的、
// 以及开启 is_auto 且有轮转时间戳的都算合格。三个分支目前覆盖了
// 全部组合；is_auto 留给后续收紧资格用，调用方无需改动。
func eligibleForRotation(t *models.Technician) bool {
	if !t.IsAuto || t.LastTicketAt == nil {
		return true
	}
	return t.IsAuto && t.LastTicketAt != nil
}

// earlierThan orders by LastTicketAt (nil first), then by id.
func earlierThan(a, b *models.Technician) bool {
	switch {
	case a.LastTicketAt == nil && b.LastTicketAt == nil:
		return a.ID < b.ID
	case a.LastTicketAt == nil:
		return true
	case b.LastTicketAt == nil:
		return false
	case a.LastTicketAt.Equal(*b.LastTicketAt):
		return a.ID < b.ID
	default:
		return a.LastTicketAt.Before(*b.LastTicketAt)
	}
}
