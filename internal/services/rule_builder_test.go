package services

import (
	"errors"
	"reflect"
	"testing"

	"deskify/internal/models"
)

func testDomain() DomainSnapshot {
	return DomainSnapshot{
		"service":  {"email", "vpn"},
		"priority": {"high", "low"},
	}
}

func TestBuildRuleConditions(t *testing.T) {
	conds, err := BuildRuleConditions([]ConditionInput{
		{Field: "service", Values: []string{"email", "vpn"}},
		{Field: "priority", Values: []string{"high"}},
	}, testDomain())
	if err != nil {
		t.Fatalf("BuildRuleConditions failed: %v", err)
	}
	if len(conds) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(conds))
	}
	if conds[0].Field.Location != "service.id" {
		t.Errorf("field not resolved through catalog: %+v", conds[0].Field)
	}
	if !reflect.DeepEqual(conds[1].Values, []string{"high"}) {
		t.Errorf("values not preserved: %v", conds[1].Values)
	}
}

func TestBuildRuleConditionsDeterministic(t *testing.T) {
	in := []ConditionInput{{Field: "service", Values: []string{"email"}}}
	a, err := BuildRuleConditions(in, testDomain())
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildRuleConditions(in, testDomain())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same input must produce identical output")
	}
}

func TestBuildRuleConditionsUnknownField(t *testing.T) {
	_, err := BuildRuleConditions([]ConditionInput{
		{Field: "service", Values: []string{"email"}},
		{Field: "nope", Values: []string{"x"}},
	}, testDomain())
	var ife *InvalidFieldError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InvalidFieldError, got %v", err)
	}
	if ife.Index != 1 || ife.Name != "nope" {
		t.Errorf("unexpected error detail: %+v", ife)
	}
}

func TestBuildRuleConditionsDuplicateField(t *testing.T) {
	_, err := BuildRuleConditions([]ConditionInput{
		{Field: "service", Values: []string{"email"}},
		{Field: "service", Values: []string{"vpn"}},
	}, testDomain())
	var dfe *DuplicateFieldError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected DuplicateFieldError, got %v", err)
	}
}

func TestBuildRuleConditionsValueOutsideDomain(t *testing.T) {
	_, err := BuildRuleConditions([]ConditionInput{
		{Field: "service", Values: []string{"printer"}},
	}, testDomain())
	var ive *InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("expected InvalidValueError, got %v", err)
	}
	if ive.Field != "service" || ive.Value != "printer" {
		t.Errorf("unexpected error detail: %+v", ive)
	}
}

func TestValidateTechScope(t *testing.T) {
	group := models.GroupSnapshot{ID: 1, MemberIDs: []uint{1, 2, 3}}
	refs := func(ids ...uint) []models.TechnicianRef {
		out := make([]models.TechnicianRef, 0, len(ids))
		for _, id := range ids {
			out = append(out, models.TechnicianRef{ID: id})
		}
		return out
	}

	tests := []struct {
		name    string
		scope   models.TechScope
		wantErr bool
	}{
		{"all always valid", models.TechScope{Type: models.ScopeAll}, false},
		{"online with list", models.TechScope{Type: models.ScopeOnline, Techs: refs(1, 2)}, false},
		{"online empty list", models.TechScope{Type: models.ScopeOnline}, true},
		{"only single", models.TechScope{Type: models.ScopeOnly, Techs: refs(2)}, false},
		{"only zero", models.TechScope{Type: models.ScopeOnly}, true},
		{"only two", models.TechScope{Type: models.ScopeOnly, Techs: refs(1, 2)}, true},
		{"except leaves someone", models.TechScope{Type: models.ScopeExcept, Techs: refs(1, 2)}, false},
		{"except empties group", models.TechScope{Type: models.ScopeExcept, Techs: refs(1, 2, 3)}, true},
		{"unknown kind", models.TechScope{Type: "WHATEVER"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTechScope(tt.scope, group)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTechScope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var se *ScopeError
				if !errors.As(err, &se) {
					t.Errorf("expected ScopeError, got %T", err)
				}
			}
		})
	}
}

func TestValidateTechScopeExceptIgnoresOutsiders(t *testing.T) {
	group := models.GroupSnapshot{ID: 1, MemberIDs: []uint{1, 2}}
	// id 99 is not a member; excluding it does not count towards emptying
	scope := models.TechScope{Type: models.ScopeExcept, Techs: []models.TechnicianRef{{ID: 1}, {ID: 99}}}
	if err := ValidateTechScope(scope, group); err != nil {
		t.Fatalf("expected valid scope, got %v", err)
	}
}
