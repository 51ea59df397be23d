package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"deskify/internal/metrics"
	"deskify/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AssignmentResult is what the ticket lifecycle gets back: the chosen
// technician plus the owning group identity from the matched rule.
type AssignmentResult struct {
	Technician models.Technician    `json:"technician"`
	Group      models.GroupSnapshot `json:"group"`
	Rule       *models.AssignmentRule `json:"rule,omitempty"`
}

// AssignmentService orchestrates matcher → scope resolver → fairness
// selector. It is invoked synchronously during ticket create/update; a
// failure here must never block the ticket itself (callers log and move on).
type AssignmentService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	matcher   *RuleMatcher
	resolver  *ScopeResolver
	directory *DirectoryService

	lookupTimeout time.Duration
	markRetries   int
}

func NewAssignmentService(db *gorm.DB, logger *logrus.Logger, matcher *RuleMatcher, resolver *ScopeResolver, directory *DirectoryService) *AssignmentService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AssignmentService{
		db:            db,
		logger:        logger,
		matcher:       matcher,
		resolver:      resolver,
		directory:     directory,
		lookupTimeout: 5 * time.Second,
		markRetries:   1,
	}
}

// SetLookupTimeout bounds all external lookups within one assignment.
func (s *AssignmentService) SetLookupTimeout(d time.Duration) {
	if d > 0 {
		s.lookupTimeout = d
	}
}

// SetMarkRetries 设置 CAS 冲突后的重选次数
func (s *AssignmentService) SetMarkRetries(n int) {
	if n >= 0 {
		s.markRetries = n
	}
}

// FindMatchingAssignment runs the engine without side effects: match the
// rule, re-check its activity gates, resolve candidates, select one.
// ErrNoRuleMatched means no automation applies, which is a normal outcome.
func (s *AssignmentService) FindMatchingAssignment(ctx context.Context, snap TicketSnapshot, tenant string, ticketType models.TicketType, event models.TriggerEvent) (*AssignmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	rule, err := s.matcher.Match(ctx, snap, tenant, ticketType)
	if err != nil {
		return nil, err
	}
	ok, err := s.ruleGatesOpen(rule, event)
	if err != nil {
		return nil, err
	}
	if !ok {
		// matched but inactive for this trigger: treated as no match
		return nil, ErrNoRuleMatched
	}

	candidates, err := s.resolver.ResolveCandidates(ctx, rule)
	if err != nil {
		return nil, err
	}
	chosen, err := SelectTechnician(candidates)
	if err != nil {
		return nil, err
	}
	group, err := rule.DecodeGroupSnapshot()
	if err != nil {
		return nil, fmt.Errorf("rule %d group snapshot: %w", rule.ID, err)
	}
	return &AssignmentResult{Technician: *chosen, Group: group, Rule: rule}, nil
}

// AssignTicket runs the engine for a persisted ticket and commits the
// outcome: advances the technician's fairness timestamp (CAS, re-selecting
// on conflict), stamps the ticket, and writes an audit record.
func (s *AssignmentService) AssignTicket(ctx context.Context, ticket *models.Ticket, event models.TriggerEvent) (*AssignmentResult, error) {
	snap, err := DecodeTicketSnapshot(ticket.Attributes)
	if err != nil {
		metrics.IncAssignment("failed")
		return nil, fmt.Errorf("ticket %d attributes: %w", ticket.ID, err)
	}

	var result *AssignmentResult
	for attempt := 0; ; attempt++ {
		result, err = s.FindMatchingAssignment(ctx, snap, ticket.Tenant, ticket.TicketType, event)
		if err != nil {
			if errors.Is(err, ErrNoRuleMatched) {
				metrics.IncAssignment("unmatched")
			} else {
				metrics.IncAssignment("failed")
			}
			return nil, err
		}
		markErr := s.directory.MarkAssigned(ctx, result.Technician.ID, ticket.Tenant, result.Technician.LastTicketAt, time.Now())
		if markErr == nil {
			break
		}
		if !errors.Is(markErr, ErrAssignConflict) || attempt >= s.markRetries {
			metrics.IncAssignment("failed")
			return nil, markErr
		}
		s.logger.Warnf("assignment: technician %d raced on ticket %d, re-selecting", result.Technician.ID, ticket.ID)
	}

	ticket.AssigneeID = &result.Technician.ID
	groupID := result.Group.ID
	ticket.GroupID = &groupID
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", ticket.ID).
		Updates(map[string]interface{}{
			"assignee_id": result.Technician.ID,
			"group_id":    result.Group.ID,
		}).Error; err != nil {
		metrics.IncAssignment("failed")
		return nil, fmt.Errorf("stamp ticket %d: %w", ticket.ID, err)
	}

	s.recordAssignment(ctx, ticket, result, event)
	metrics.IncAssignment("matched")
	s.logger.Infof("assignment: ticket %d -> technician %d (group %s) via rule %d",
		ticket.ID, result.Technician.ID, result.Group.Name, result.Rule.ID)
	return result, nil
}

// ruleGatesOpen re-validates the matched rule's own activity gates. The
// engine only automates ALL_TIME round-robin rules; anything else is a
// no-match, not an error.
func (s *AssignmentService) ruleGatesOpen(rule *models.AssignmentRule, event models.TriggerEvent) (bool, error) {
	if !rule.IsActive || !rule.IsApply || rule.IsDelete {
		return false, nil
	}
	if rule.AutoType != models.AutoRoundRobin {
		return false, nil
	}
	applyTime, err := rule.DecodeApplyTime()
	if err != nil {
		return false, fmt.Errorf("rule %d apply time: %w", rule.ID, err)
	}
	if applyTime.Type != models.ApplyAllTime {
		return false, nil
	}
	events, err := rule.DecodeApplyEvents()
	if err != nil {
		return false, fmt.Errorf("rule %d apply events: %w", rule.ID, err)
	}
	for _, e := range events {
		if e == event {
			return true, nil
		}
	}
	return false, nil
}

func (s *AssignmentService) recordAssignment(ctx context.Context, ticket *models.Ticket, result *AssignmentResult, event models.TriggerEvent) {
	record := &models.AssignmentRecord{
		CorrelationID: uuid.NewString(),
		Tenant:        ticket.Tenant,
		TicketID:      ticket.ID,
		RuleID:        result.Rule.ID,
		GroupID:       result.Group.ID,
		TechnicianID:  result.Technician.ID,
		TriggerEvent:  event,
		Reason:        "round-robin",
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Warnf("assignment: record for ticket %d failed: %v", ticket.ID, err)
	}
}

// RecordListRequest 审计记录查询
type RecordListRequest struct {
	Tenant       string `form:"tenant"`
	RuleID       uint   `form:"rule_id"`
	TechnicianID uint   `form:"technician_id"`
	TicketID     uint   `form:"ticket_id"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

// ListRecords returns assignment audit records, newest first.
func (s *AssignmentService) ListRecords(ctx context.Context, req *RecordListRequest) ([]models.AssignmentRecord, int64, error) {
	if req == nil {
		return nil, 0, fmt.Errorf("request required")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	q := s.db.WithContext(ctx).Model(&models.AssignmentRecord{})
	if req.Tenant != "" {
		q = q.Where("tenant = ?", req.Tenant)
	}
	if req.RuleID != 0 {
		q = q.Where("rule_id = ?", req.RuleID)
	}
	if req.TechnicianID != 0 {
		q = q.Where("technician_id = ?", req.TechnicianID)
	}
	if req.TicketID != 0 {
		q = q.Where("ticket_id = ?", req.TicketID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []models.AssignmentRecord
	err := q.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DecodeTicketSnapshot parses the ticket's stored attribute tree; an empty
// column decodes to an empty snapshot.
func DecodeTicketSnapshot(attributes string) (TicketSnapshot, error) {
	if attributes == "" {
		return TicketSnapshot{}, nil
	}
	var snap TicketSnapshot
	if err := json.Unmarshal([]byte(attributes), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}
