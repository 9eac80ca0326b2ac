package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required Permission
		want     bool
	}{
		{"exact match", []string{"servers:read"}, PermServersRead, true},
		{"wildcard", []string{"*"}, PermCredentialsWrite, true},
		{"write implies read", []string{"servers:write"}, PermServersRead, true},
		{"read does not imply write", []string{"servers:read"}, PermServersWrite, false},
		{"write on other resource", []string{"groups:write"}, PermServersRead, false},
		{"status write only", []string{"status:write"}, PermStatusWrite, true},
		{"no permissions", nil, PermServersRead, false},
		{"empty required not implied by prefix", []string{"servers:readonly"}, PermServersRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasPermission(%v, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestValidatePermissions(t *testing.T) {
	if err := ValidatePermissions([]string{"servers:read", "installations:write", "*"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePermissions([]string{"servers:read", "servers:admin"}); err == nil {
		t.Error("expected error for unknown permission")
	}
	if err := ValidatePermissions(nil); err != nil {
		t.Errorf("empty list should be valid: %v", err)
	}
}

func TestAllPermissionsAreValid(t *testing.T) {
	for _, p := range AllPermissions() {
		if !ValidPermission(string(p)) {
			t.Errorf("ValidPermission(%q) = false", p)
		}
	}
}
