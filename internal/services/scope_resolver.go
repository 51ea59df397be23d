package services

import (
	"context"
	"fmt"

	"deskify/internal/models"
)

// ScopeResolver turns a matched rule's technician scope into the concrete
// candidate pool, always against the live roster rather than the stale
// group snapshot embedded in the rule.
type ScopeResolver struct {
	directory *DirectoryService
}

func NewScopeResolver(directory *DirectoryService) *ScopeResolver {
	return &ScopeResolver{directory: directory}
}

// ResolveCandidates produces the candidate technicians for the rule.
// Member-lookup failures propagate; they are never swallowed here.
func (r *ScopeResolver) ResolveCandidates(ctx context.Context, rule *models.AssignmentRule) ([]models.Technician, error) {
	scope, err := rule.DecodeTechScope()
	if err != nil {
		return nil, fmt.Errorf("rule %d tech scope: %w", rule.ID, err)
	}
	snap, err := rule.DecodeGroupSnapshot()
	if err != nil {
		return nil, fmt.Errorf("rule %d group snapshot: %w", rule.ID, err)
	}

	switch scope.Type {
	case models.ScopeAll:
		group, err := r.directory.GetGroupByID(ctx, rule.Tenant, snap.ID)
		if err != nil {
			return nil, err
		}
		return group.Members, nil

	case models.ScopeOnline:
		// explicit allow-list, re-fetched live to refresh LastTicketAt
		return r.directory.GetTechniciansByIDs(ctx, scopeTechIDs(scope))

	case models.ScopeExcept:
		group, err := r.directory.GetGroupByID(ctx, rule.Tenant, snap.ID)
		if err != nil {
			return nil, err
		}
		listed, err := r.directory.GetTechniciansByIDs(ctx, scopeTechIDs(scope))
		if err != nil {
			return nil, err
		}
		// Symmetric difference over roster ∪ excluded: ids present in both
		// are dropped, ids present in exactly one survive. An excluded id
		// outside the roster therefore survives into the pool; this mirrors
		// the historical behavior and is pinned by tests pending a product
		// decision on plain set difference.
		return symmetricDifference(group.Members, listed), nil

	case models.ScopeOnly:
		// cardinality (exactly one) is enforced at rule-build time
		return r.directory.GetTechniciansByIDs(ctx, scopeTechIDs(scope))

	default:
		return nil, fmt.Errorf("rule %d: unknown tech scope type %q", rule.ID, scope.Type)
	}
}

func scopeTechIDs(scope models.TechScope) []uint {
	ids := make([]uint, 0, len(scope.Techs))
	for _, t := range scope.Techs {
		ids = append(ids, t.ID)
	}
	return ids
}

// symmetricDifference keeps technicians whose id occurs in exactly one of
// the two collections, preserving first-seen order.
func symmetricDifference(a, b []models.Technician) []models.Technician {
	inA := make(map[uint]bool, len(a))
	for _, t := range a {
		inA[t.ID] = true
	}
	inB := make(map[uint]bool, len(b))
	for _, t := range b {
		inB[t.ID] = true
	}
	var out []models.Technician
	seen := make(map[uint]bool, len(a)+len(b))
	for _, t := range a {
		if !inB[t.ID] && !seen[t.ID] {
			out = append(out, t)
			seen[t.ID] = true
		}
	}
	for _, t := range b {
		if !inA[t.ID] && !seen[t.ID] {
			out = append(out, t)
			seen[t.ID] = true
		}
	}
	return out
}
