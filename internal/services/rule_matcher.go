package services

import (
	"context"
	"errors"
	"fmt"

	"deskify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNoRuleMatched 没有规则命中该工单，属于正常业务结果，不是异常
var ErrNoRuleMatched = errors.New("no assignment rule matched")

// RuleMatcher evaluates the ordered rule list against a ticket snapshot.
// First match in priority order wins; evaluation short-circuits.
type RuleMatcher struct {
	db     *gorm.DB
	logger *logrus.Logger
	// resolve is swappable for tests that instrument lookup counts
	resolve func(TicketSnapshot, string) (string, bool)
}

func NewRuleMatcher(db *gorm.DB, logger *logrus.Logger) *RuleMatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleMatcher{db: db, logger: logger, resolve: ResolvePath}
}

// Match returns the first rule whose conditions are all satisfied by the
// snapshot, or ErrNoRuleMatched. Only active, applying, non-deleted rules
// for the (tenant, ticket type) participate, ascending by priority.
func (m *RuleMatcher) Match(ctx context.Context, snap TicketSnapshot, tenant string, ticketType models.TicketType) (*models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	err := m.db.WithContext(ctx).
		Where("tenant = ? AND ticket_type = ? AND is_active = ? AND is_apply = ? AND is_delete = ?",
			tenant, ticketType, true, true, false).
		Order("priority ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	seen := make(map[int]bool, len(rules))
	for i := range rules {
		if seen[rules[i].Priority] {
			m.logger.Errorf("assignment: tenant=%s type=%s duplicate priority %d", tenant, ticketType, rules[i].Priority)
			return nil, fmt.Errorf("%w: priority %d", ErrPriorityCorrupt, rules[i].Priority)
		}
		seen[rules[i].Priority] = true
	}

	for i := range rules {
		ok, err := m.ruleMatches(&rules[i], snap)
		if err != nil {
			return nil, err
		}
		if ok {
			m.logger.Infof("assignment: rule %d (%s) matched tenant=%s type=%s priority=%d",
				rules[i].ID, rules[i].Name, tenant, ticketType, rules[i].Priority)
			return &rules[i], nil
		}
	}
	return nil, ErrNoRuleMatched
}

// ruleMatches tests every condition; the first failing condition stops the
// rule. An absent ticket attribute simply fails the membership test.
func (m *RuleMatcher) ruleMatches(rule *models.AssignmentRule, snap TicketSnapshot) (bool, error) {
	conds, err := rule.DecodeConditions()
	if err != nil {
		// 条件列损坏：规则创建后目录被改动，属于不变量破坏
		m.logger.Errorf("assignment: rule %d has invalid conditions: %v", rule.ID, err)
		return false, fmt.Errorf("rule %d conditions: %w", rule.ID, err)
	}
	for _, cond := range conds {
		actual, present := m.resolve(snap, cond.Field.Location)
		if !present {
			return false, nil
		}
		if !containsValue(cond.Values, actual) {
			return false, nil
		}
	}
	return true, nil
}

func containsValue(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
