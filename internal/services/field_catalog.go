package services

import (
	"fmt"
	"strings"

	"deskify/internal/models"
)

// TicketSnapshot is the decoded attribute tree a ticket is matched against.
// Values at condition locations are compared as strings.
type TicketSnapshot map[string]interface{}

// fieldCatalog maps logical condition field names to their locator path in
// the ticket attribute tree. Static; rules may only reference these fields.
var fieldCatalog = []models.FieldRef{
	{Name: "service", Display: "Service", Location: "service.id"},
	{Name: "sub_service", Display: "Sub-service", Location: "sub_service.id"},
	{Name: "category", Display: "Category", Location: "category.id"},
	{Name: "priority", Display: "Priority", Location: "priority.id"},
	{Name: "impact", Display: "Impact", Location: "impact.id"},
	{Name: "urgency", Display: "Urgency", Location: "urgency.id"},
	{Name: "department", Display: "Department", Location: "requester.department.id"},
	{Name: "group", Display: "Support group", Location: "group.id"},
}

// CatalogFields returns the full field catalog in declaration order.
func CatalogFields() []models.FieldRef {
	out := make([]models.FieldRef, len(fieldCatalog))
	copy(out, fieldCatalog)
	return out
}

// LookupField finds a catalog entry by logical field name.
func LookupField(name string) (models.FieldRef, bool) {
	for _, f := range fieldCatalog {
		if f.Name == name {
			return f, true
		}
	}
	return models.FieldRef{}, false
}

// ResolvePath walks a dot-separated location through the snapshot tree.
// A missing or nil segment yields ok=false (the "absent" sentinel), never
// an error: rules must tolerate tickets without the attribute.
func ResolvePath(snap TicketSnapshot, location string) (string, bool) {
	if snap == nil || location == "" {
		return "", false
	}
	var cur interface{} = map[string]interface{}(snap)
	for _, seg := range strings.Split(location, ".") {
		node, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = node[seg]
		if !ok || cur == nil {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case float64:
		// JSON numbers decode as float64; ids are integral
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%v", v), true
	case map[string]interface{}:
		// a path ending on a subtree has no comparable value
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}
