// Package auth - permissions.go defines the permission names an API key may
// carry and the HasPermission check used by the middleware.
package auth

import (
	"fmt"
	"strings"
)

// Permission is a named capability on one resource family.
type Permission string

const (
	PermServersRead        Permission = "servers:read"
	PermServersWrite       Permission = "servers:write"
	PermInstallationsRead  Permission = "installations:read"
	PermInstallationsWrite Permission = "installations:write"
	PermCredentialsRead    Permission = "credentials:read"
	PermCredentialsWrite   Permission = "credentials:write"
	PermGroupsRead         Permission = "groups:read"
	PermGroupsWrite        Permission = "groups:write"
	PermWebhooksRead       Permission = "webhooks:read"
	PermWebhooksWrite      Permission = "webhooks:write"
	PermStatusWrite        Permission = "status:write"
	PermSettingsRead       Permission = "settings:read"
	PermSettingsWrite      Permission = "settings:write"
	PermBillingRead        Permission = "billing:read"

	// PermAll grants everything. Session callers implicitly hold it.
	PermAll Permission = "*"
)

// AllPermissions returns every permission a key may be minted with.
func AllPermissions() []Permission {
	return []Permission{
		PermServersRead,
		PermServersWrite,
		PermInstallationsRead,
		PermInstallationsWrite,
		PermCredentialsRead,
		PermCredentialsWrite,
		PermGroupsRead,
		PermGroupsWrite,
		PermWebhooksRead,
		PermWebhooksWrite,
		PermStatusWrite,
		PermSettingsRead,
		PermSettingsWrite,
		PermBillingRead,
		PermAll,
	}
}

// ValidPermission reports whether p is a known permission name.
func ValidPermission(p string) bool {
	for _, known := range AllPermissions() {
		if string(known) == p {
			return true
		}
	}
	return false
}

// ValidatePermissions checks that every entry is a known permission name.
func ValidatePermissions(perms []string) error {
	for _, p := range perms {
		if !ValidPermission(p) {
			return fmt.Errorf("invalid permission: %s", p)
		}
	}
	return nil
}

// HasPermission reports whether granted satisfies required. "*" matches
// anything, and X:write implies X:read.
func HasPermission(granted []string, required Permission) bool {
	req := string(required)
	var impliedBy string
	if resource, ok := strings.CutSuffix(req, ":read"); ok {
		impliedBy = resource + ":write"
	}

	for _, p := range granted {
		if p == string(PermAll) || p == req {
			return true
		}
		if impliedBy != "" && p == impliedBy {
			return true
		}
	}
	return false
}
