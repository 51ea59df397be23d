package services

import "testing"

func TestLookupField(t *testing.T) {
	f, ok := LookupField("department")
	if !ok {
		t.Fatal("expected department in catalog")
	}
	if f.Location != "requester.department.id" {
		t.Errorf("unexpected location %q", f.Location)
	}

	if _, ok := LookupField("does_not_exist"); ok {
		t.Error("expected miss for unknown field")
	}
}

func TestResolvePath(t *testing.T) {
	snap := TicketSnapshot{
		"service": map[string]interface{}{"id": "email", "name": "邮件服务"},
		"priority": map[string]interface{}{
			"id": float64(3),
		},
		"requester": map[string]interface{}{
			"department": map[string]interface{}{"id": "it-ops"},
		},
		"tag": "vip",
	}

	tests := []struct {
		name     string
		location string
		want     string
		wantOK   bool
	}{
		{"nested string", "service.id", "email", true},
		{"deep path", "requester.department.id", "it-ops", true},
		{"integral float formats as int", "priority.id", "3", true},
		{"top level scalar", "tag", "vip", true},
		{"absent leaf", "service.missing", "", false},
		{"absent root", "urgency.id", "", false},
		{"path through scalar", "tag.id", "", false},
		{"path ends on subtree", "requester.department", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolvePath(snap, tt.location)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolvePath(%q) = (%q, %v), want (%q, %v)", tt.location, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolvePathNilSnapshot(t *testing.T) {
	if _, ok := ResolvePath(nil, "service.id"); ok {
		t.Error("nil snapshot must resolve to absent")
	}
	if _, ok := ResolvePath(TicketSnapshot{}, ""); ok {
		t.Error("empty location must resolve to absent")
	}
}
