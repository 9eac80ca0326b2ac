package models

import (
	"errors"
	"strings"
	"time"
)

// Installation status values. "active" and "inactive" are accepted as
// aliases of running and stopped.
const (
	InstallationStatusPending    = "pending"
	InstallationStatusInstalling = "installing"
	InstallationStatusRunning    = "running"
	InstallationStatusStopped    = "stopped"
	InstallationStatusFailed     = "failed"
)

// ErrInvalidStatus is returned for an unknown installation status.
var ErrInvalidStatus = errors.New("invalid installation status")

var installationStatusAliases = map[string]string{
	InstallationStatusPending:    InstallationStatusPending,
	InstallationStatusInstalling: InstallationStatusInstalling,
	InstallationStatusRunning:    InstallationStatusRunning,
	InstallationStatusStopped:    InstallationStatusStopped,
	InstallationStatusFailed:     InstallationStatusFailed,
	"active":                     InstallationStatusRunning,
	"inactive":                   InstallationStatusStopped,
}

// NormalizeInstallationStatus maps s (case-insensitive, aliases allowed) to
// its canonical value.
func NormalizeInstallationStatus(s string) (string, error) {
	if canonical, ok := installationStatusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return canonical, nil
	}
	return "", ErrInvalidStatus
}

// Installation links one Server to one Software item for one user.
type Installation struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ServerID   string    `db:"server_id" json:"server_id"`
	SoftwareID string    `db:"software_id" json:"software_id"`
	Status     string    `db:"status" json:"status"`
	Version    string    `db:"version" json:"version"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	// Joined from servers/software on list and get queries
	ServerName    *string `db:"server_name" json:"server_name,omitempty"`
	SoftwareName  *string `db:"software_name" json:"software_name,omitempty"`
	LatestVersion *string `db:"latest_version" json:"latest_version,omitempty"`
}
