package services

import (
	"fmt"

	"deskify/internal/models"
)

// ConditionInput is a raw condition as submitted by the admin surface.
type ConditionInput struct {
	Field  string   `json:"field" binding:"required"`
	Values []string `json:"values" binding:"required"`
}

// DomainSnapshot maps a field name to the ids allowed for it within one
// (tenant, ticket type) at validation time.
type DomainSnapshot map[string][]string

// InvalidFieldError 提交的条件引用了目录外的字段
type InvalidFieldError struct {
	Name  string
	Index int
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("condition %d references unknown field %q", e.Index, e.Name)
}

// DuplicateFieldError 同一规则内字段重复
type DuplicateFieldError struct {
	Name string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate condition field %q", e.Name)
}

// InvalidValueError 提交的值不在该字段的值域快照内
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("value %q is not allowed for field %q", e.Value, e.Field)
}

// ScopeError 技术员范围不满足基数约束
type ScopeError struct {
	Kind   models.ScopeKind
	Detail string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("invalid %s scope: %s", e.Kind, e.Detail)
}

// BuildRuleConditions validates raw conditions against the field catalog and
// the domain snapshot and produces the persisted condition list. Pure
// transform: no side effects, the caller persists the result. Re-running on
// unchanged input yields identical output.
func BuildRuleConditions(inputs []ConditionInput, domain DomainSnapshot) ([]models.RuleCondition, error) {
	conds := make([]models.RuleCondition, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		field, ok := LookupField(in.Field)
		if !ok {
			return nil, &InvalidFieldError{Name: in.Field, Index: i}
		}
		if seen[field.Name] {
			return nil, &DuplicateFieldError{Name: field.Name}
		}
		seen[field.Name] = true

		allowed := make(map[string]bool, len(domain[field.Name]))
		for _, v := range domain[field.Name] {
			allowed[v] = true
		}
		for _, v := range in.Values {
			if !allowed[v] {
				return nil, &InvalidValueError{Field: field.Name, Value: v}
			}
		}
		values := make([]string, len(in.Values))
		copy(values, in.Values)
		conds = append(conds, models.RuleCondition{Field: field, Values: values})
	}
	return conds, nil
}

// ValidateTechScope enforces the cardinality invariants a scope must satisfy
// against the group it is attached to: ONLY names exactly one technician,
// EXCEPT may not exclude the entire group.
func ValidateTechScope(scope models.TechScope, group models.GroupSnapshot) error {
	switch scope.Type {
	case models.ScopeAll:
		return nil
	case models.ScopeOnline:
		if len(scope.Techs) == 0 {
			return &ScopeError{Kind: scope.Type, Detail: "allow-list is empty"}
		}
		return nil
	case models.ScopeOnly:
		if len(scope.Techs) != 1 {
			return &ScopeError{Kind: scope.Type, Detail: fmt.Sprintf("expected exactly 1 technician, got %d", len(scope.Techs))}
		}
		return nil
	case models.ScopeExcept:
		members := make(map[uint]bool, len(group.MemberIDs))
		for _, id := range group.MemberIDs {
			members[id] = true
		}
		excluded := 0
		for _, t := range scope.Techs {
			if members[t.ID] {
				excluded++
			}
		}
		if len(group.MemberIDs)-excluded < 1 {
			return &ScopeError{Kind: scope.Type, Detail: "exclusion would empty the group"}
		}
		return nil
	default:
		return &ScopeError{Kind: scope.Type, Detail: "unknown scope type"}
	}
}
