package models

import "time"

// Server status values.
const (
	ServerStatusOnline      = "online"
	ServerStatusOffline     = "offline"
	ServerStatusMaintenance = "maintenance"
	ServerStatusUnknown     = "unknown"
)

// SSH auth methods.
const (
	SSHAuthPassword = "password"
	SSHAuthKey      = "key"
	SSHAuthNone     = "none"
)

// Server is a user-owned machine reachable over SSH. The monitoring fields
// are display strings ("3 days, 4 hours", "0.42 0.30 0.25", "41%", "1.2G/3.8G").
type Server struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	Name               string     `db:"name" json:"name"`
	IPAddress          string     `db:"ip_address" json:"ip_address"`
	SSHPort            int        `db:"ssh_port" json:"ssh_port"`
	SSHUsername        string     `db:"ssh_username" json:"ssh_username"`
	SSHAuthMethod      string     `db:"ssh_auth_method" json:"ssh_auth_method"`
	SSHSecretEncrypted *string    `db:"ssh_secret_encrypted" json:"-"`
	Status             string     `db:"status" json:"status"`
	Uptime             string     `db:"uptime" json:"uptime"`
	LoadAverage        string     `db:"load_average" json:"load_average"`
	DiskUsage          string     `db:"disk_usage" json:"disk_usage"`
	MemoryUsage        string     `db:"memory_usage" json:"memory_usage"`
	LastCheckedAt      *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// HasSSHSecret reports whether a password or private key is stored.
func (s *Server) HasSSHSecret() bool {
	return s.SSHSecretEncrypted != nil && *s.SSHSecretEncrypted != ""
}

// ServerMetrics is a monitoring snapshot applied to a Server.
type ServerMetrics struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	LoadAverage string `json:"load_average"`
	DiskUsage   string `json:"disk_usage"`
	MemoryUsage string `json:"memory_usage"`
}

// IsValidServerStatus reports whether s is a known server status.
func IsValidServerStatus(s string) bool {
	switch s {
	case ServerStatusOnline, ServerStatusOffline, ServerStatusMaintenance, ServerStatusUnknown:
		return true
	}
	return false
}
