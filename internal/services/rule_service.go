package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"deskify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrRuleNotFound 规则不存在（或已软删除）
var ErrRuleNotFound = errors.New("assignment rule not found")

// ErrPriorityCorrupt 读取时发现优先级重复，属于不变量破坏
var ErrPriorityCorrupt = errors.New("rule priorities corrupted: duplicates found")

// RuleService manages the tenant/type-scoped rule store: CRUD, priority
// numbering and bulk reorder. Priorities within (tenant, ticket_type) are
// kept dense {1..N}; create appends at N+1, reorder rewrites the whole set.
type RuleService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	directory *DirectoryService
}

func NewRuleService(db *gorm.DB, logger *logrus.Logger, directory *DirectoryService) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{db: db, logger: logger, directory: directory}
}

// TechScopeInput 创建/更新规则时提交的技术员范围
type TechScopeInput struct {
	Type    models.ScopeKind `json:"type"`
	TechIDs []uint           `json:"tech_ids"`
}

// RuleCreateRequest 创建规则的请求
type RuleCreateRequest struct {
	Tenant      string                `json:"tenant" binding:"required"`
	TicketType  models.TicketType     `json:"ticket_type" binding:"required"`
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	Conditions  []ConditionInput      `json:"conditions"`
	ApplyEvents []models.TriggerEvent `json:"apply_request"`
	ApplyTime   *models.ApplyTime     `json:"apply_time"`
	GroupID     uint                  `json:"group_id" binding:"required"`
	TechScope   TechScopeInput        `json:"apply_tech"`
	AutoType    models.AutoType       `json:"auto_type"`
}

// RuleUpdateRequest 更新规则；条件会按最新值域快照重建
type RuleUpdateRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Conditions  []ConditionInput      `json:"conditions"`
	ApplyEvents []models.TriggerEvent `json:"apply_request"`
	ApplyTime   *models.ApplyTime     `json:"apply_time"`
	GroupID     *uint                 `json:"group_id"`
	TechScope   *TechScopeInput       `json:"apply_tech"`
	AutoType    *models.AutoType      `json:"auto_type"`
	IsActive    *bool                 `json:"is_active"`
	IsApply     *bool                 `json:"is_apply"`
}

// GetPossibleValues returns the domain-of-allowed-values snapshot for one
// (tenant, ticket type). Used only at rule build/update time.
func (s *RuleService) GetPossibleValues(ctx context.Context, tenant string, ticketType models.TicketType) (DomainSnapshot, error) {
	var rows []models.TaxonomyValue
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND ticket_type = ?", tenant, ticketType).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load taxonomy values: %w", err)
	}
	snap := make(DomainSnapshot)
	for _, row := range rows {
		snap[row.Field] = append(snap[row.Field], row.Value)
	}
	return snap, nil
}

// CreateRule validates conditions and scope, snapshots the group, and
// appends the rule at priority N+1 inside one transaction so concurrent
// creates cannot mint duplicate priorities.
func (s *RuleService) CreateRule(ctx context.Context, req *RuleCreateRequest) (*models.AssignmentRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	domain, err := s.GetPossibleValues(ctx, req.Tenant, req.TicketType)
	if err != nil {
		return nil, err
	}
	conds, err := BuildRuleConditions(req.Conditions, domain)
	if err != nil {
		return nil, err
	}

	group, err := s.directory.GetGroupByID(ctx, req.Tenant, req.GroupID)
	if err != nil {
		return nil, err
	}
	snap := snapshotGroup(group)
	scope, err := s.resolveScopeInput(ctx, req.TechScope)
	if err != nil {
		return nil, err
	}
	if err := ValidateTechScope(scope, snap); err != nil {
		return nil, err
	}

	rule := &models.AssignmentRule{
		Tenant:      req.Tenant,
		TicketType:  req.TicketType,
		Name:        req.Name,
		Description: req.Description,
		AutoType:    req.AutoType,
		IsActive:    true,
		IsApply:     true,
	}
	if rule.AutoType == "" {
		rule.AutoType = models.AutoRoundRobin
	}
	if err := encodeRulePayloads(rule, conds, req.ApplyEvents, req.ApplyTime, snap, scope); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AssignmentRule{}).
			Where("tenant = ? AND ticket_type = ? AND is_delete = ?", req.Tenant, req.TicketType, false).
			Count(&count).Error; err != nil {
			return err
		}
		rule.Priority = int(count) + 1
		return tx.Create(rule).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	s.logger.Infof("assignment: created rule %d (%s) tenant=%s type=%s priority=%d",
		rule.ID, rule.Name, rule.Tenant, rule.TicketType, rule.Priority)
	return rule, nil
}

// UpdateRule rewrites the stored rule in place. Conditions are rebuilt
// against a freshly fetched domain snapshot; priority is untouched.
func (s *RuleService) UpdateRule(ctx context.Context, tenant string, id uint, req *RuleUpdateRequest) (*models.AssignmentRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	rule, err := s.GetRule(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.AutoType != nil {
		rule.AutoType = *req.AutoType
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.IsApply != nil {
		rule.IsApply = *req.IsApply
	}

	if req.Conditions != nil {
		domain, err := s.GetPossibleValues(ctx, rule.Tenant, rule.TicketType)
		if err != nil {
			return nil, err
		}
		conds, err := BuildRuleConditions(req.Conditions, domain)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(conds)
		if err != nil {
			return nil, err
		}
		rule.Conditions = string(raw)
	}
	if req.ApplyEvents != nil {
		raw, err := json.Marshal(req.ApplyEvents)
		if err != nil {
			return nil, err
		}
		rule.ApplyEvents = string(raw)
	}
	if req.ApplyTime != nil {
		raw, err := json.Marshal(req.ApplyTime)
		if err != nil {
			return nil, err
		}
		rule.ApplyTime = string(raw)
	}

	snap, err := rule.DecodeGroupSnapshot()
	if err != nil {
		return nil, fmt.Errorf("rule %d group snapshot: %w", rule.ID, err)
	}
	if req.GroupID != nil {
		group, err := s.directory.GetGroupByID(ctx, rule.Tenant, *req.GroupID)
		if err != nil {
			return nil, err
		}
		snap = snapshotGroup(group)
		raw, err := json.Marshal(snap)
		if err != nil {
			return nil, err
		}
		rule.GroupSnapshot = string(raw)
	}
	if req.TechScope != nil {
		scope, err := s.resolveScopeInput(ctx, *req.TechScope)
		if err != nil {
			return nil, err
		}
		if err := ValidateTechScope(scope, snap); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(scope)
		if err != nil {
			return nil, err
		}
		rule.TechScope = string(raw)
	}

	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, fmt.Errorf("update rule %d: %w", id, err)
	}
	return rule, nil
}

// GetRule loads one live rule scoped to the tenant.
func (s *RuleService) GetRule(ctx context.Context, tenant string, id uint) (*models.AssignmentRule, error) {
	var rule models.AssignmentRule
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND id = ? AND is_delete = ?", tenant, id, false).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("load rule %d: %w", id, err)
	}
	return &rule, nil
}

// DeleteRule soft-deletes the rule and re-compacts sibling priorities so
// the remaining set stays dense.
func (s *RuleService) DeleteRule(ctx context.Context, tenant string, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rule models.AssignmentRule
		if err := tx.Where("tenant = ? AND id = ? AND is_delete = ?", tenant, id, false).
			First(&rule).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleNotFound
			}
			return err
		}
		if err := tx.Model(&rule).Updates(map[string]interface{}{
			"is_delete": true,
			"is_apply":  false,
		}).Error; err != nil {
			return err
		}
		// 后续规则前移一位，保持稠密
		return tx.Model(&models.AssignmentRule{}).
			Where("tenant = ? AND ticket_type = ? AND is_delete = ? AND priority > ?",
				tenant, rule.TicketType, false, rule.Priority).
			Update("priority", gorm.Expr("priority - 1")).Error
	})
}

// ListRules returns live rules in evaluation order and verifies the density
// invariant; duplicates at read time surface as ErrPriorityCorrupt.
func (s *RuleService) ListRules(ctx context.Context, tenant string, ticketType models.TicketType) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND ticket_type = ? AND is_delete = ?", tenant, ticketType, false).
		Order("priority ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	if err := checkPriorityDensity(rules); err != nil {
		s.logger.Errorf("assignment: tenant=%s type=%s: %v", tenant, ticketType, err)
		return nil, err
	}
	return rules, nil
}

// PriorityAssignment 批量调序的一项
type PriorityAssignment struct {
	RuleID   uint `json:"rule_id" binding:"required"`
	Priority int  `json:"priority" binding:"required"`
}

// PriorityViolation 单个调序项的校验失败
type PriorityViolation struct {
	RuleID   uint   `json:"rule_id"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason"` // not_exists, too_large, duplicate_id, duplicate_value, not_covered
}

// PriorityValidationError aggregates every violation found in a reorder
// request; the reorder applies nothing unless this is empty.
type PriorityValidationError struct {
	Violations []PriorityViolation
}

func (e *PriorityValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("rule %d priority %d: %s", v.RuleID, v.Priority, v.Reason))
	}
	return "priority reorder rejected: " + strings.Join(parts, "; ")
}

// ReorderPriorities atomically applies a bulk priority reassignment. The
// request must cover every live rule of the (tenant, ticket type) pair so
// the applied set is a dense permutation {1..N}. All violations are
// collected and reported together; any violation aborts the whole request
// with no change applied.
func (s *RuleService) ReorderPriorities(ctx context.Context, tenant string, ticketType models.TicketType, assignments []PriorityAssignment) error {
	var rules []models.AssignmentRule
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND ticket_type = ? AND is_delete = ?", tenant, ticketType, false).
		Find(&rules).Error
	if err != nil {
		return fmt.Errorf("load rules for reorder: %w", err)
	}

	existing := make(map[uint]bool, len(rules))
	for _, r := range rules {
		existing[r.ID] = true
	}

	var violations []PriorityViolation
	seenID := make(map[uint]bool, len(assignments))
	seenPriority := make(map[int]bool, len(assignments))
	for _, a := range assignments {
		if !existing[a.RuleID] {
			violations = append(violations, PriorityViolation{RuleID: a.RuleID, Priority: a.Priority, Reason: "not_exists"})
		}
		if a.Priority < 1 || a.Priority > len(rules) {
			violations = append(violations, PriorityViolation{RuleID: a.RuleID, Priority: a.Priority, Reason: "too_large"})
		}
		if seenID[a.RuleID] {
			violations = append(violations, PriorityViolation{RuleID: a.RuleID, Priority: a.Priority, Reason: "duplicate_id"})
		}
		seenID[a.RuleID] = true
		if seenPriority[a.Priority] {
			violations = append(violations, PriorityViolation{RuleID: a.RuleID, Priority: a.Priority, Reason: "duplicate_value"})
		}
		seenPriority[a.Priority] = true
	}
	// 漏掉任一存活规则都会让结果出现重复优先级，整单拒绝
	for _, r := range rules {
		if !seenID[r.ID] {
			violations = append(violations, PriorityViolation{RuleID: r.ID, Priority: r.Priority, Reason: "not_covered"})
		}
	}
	if len(violations) > 0 {
		return &PriorityValidationError{Violations: violations}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			if err := tx.Model(&models.AssignmentRule{}).
				Where("id = ? AND tenant = ?", a.RuleID, tenant).
				Updates(map[string]interface{}{
					"priority":   a.Priority,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply reorder: %w", err)
	}
	return nil
}

// resolveScopeInput expands submitted technician ids into embedded refs; a
// missing id surfaces as a service error.
func (s *RuleService) resolveScopeInput(ctx context.Context, in TechScopeInput) (models.TechScope, error) {
	scope := models.TechScope{Type: in.Type}
	if in.Type == "" {
		scope.Type = models.ScopeAll
	}
	if len(in.TechIDs) > 0 {
		techs, err := s.directory.GetTechniciansByIDs(ctx, in.TechIDs)
		if err != nil {
			return models.TechScope{}, err
		}
		for _, t := range techs {
			scope.Techs = append(scope.Techs, models.TechnicianRef{ID: t.ID, FullName: t.FullName, Email: t.Email})
		}
	}
	return scope, nil
}

func snapshotGroup(group *models.SupportGroup) models.GroupSnapshot {
	snap := models.GroupSnapshot{
		ID:       group.ID,
		Name:     group.Name,
		Tenant:   group.Tenant,
		LeaderID: group.LeaderID,
	}
	for _, m := range group.Members {
		snap.MemberIDs = append(snap.MemberIDs, m.ID)
	}
	sort.Slice(snap.MemberIDs, func(i, j int) bool { return snap.MemberIDs[i] < snap.MemberIDs[j] })
	return snap
}

func encodeRulePayloads(rule *models.AssignmentRule, conds []models.RuleCondition, events []models.TriggerEvent, applyTime *models.ApplyTime, snap models.GroupSnapshot, scope models.TechScope) error {
	condJSON, err := json.Marshal(conds)
	if err != nil {
		return fmt.Errorf("invalid conditions: %w", err)
	}
	if events == nil {
		events = []models.TriggerEvent{models.TriggerCreate}
	}
	evtJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("invalid apply events: %w", err)
	}
	if applyTime == nil {
		applyTime = &models.ApplyTime{Type: models.ApplyAllTime}
	}
	atJSON, err := json.Marshal(applyTime)
	if err != nil {
		return fmt.Errorf("invalid apply time: %w", err)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("invalid group snapshot: %w", err)
	}
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("invalid tech scope: %w", err)
	}
	rule.Conditions = string(condJSON)
	rule.ApplyEvents = string(evtJSON)
	rule.ApplyTime = string(atJSON)
	rule.GroupSnapshot = string(snapJSON)
	rule.TechScope = string(scopeJSON)
	return nil
}

// checkPriorityDensity verifies priorities form {1..N} with no duplicates.
func checkPriorityDensity(rules []models.AssignmentRule) error {
	seen := make(map[int]bool, len(rules))
	for _, r := range rules {
		if seen[r.Priority] {
			return fmt.Errorf("%w: priority %d", ErrPriorityCorrupt, r.Priority)
		}
		seen[r.Priority] = true
	}
	for p := 1; p <= len(rules); p++ {
		if !seen[p] {
			return fmt.Errorf("rule priorities corrupted: missing priority %d", p)
		}
	}
	return nil
}
