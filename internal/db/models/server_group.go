package models

import "time"

// ServerGroup is a user-defined, ordered grouping of servers.
type ServerGroup struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	MemberCount int `db:"member_count" json:"member_count"`
}

// ServerGroupMember places a server in a group at OrderIndex.
type ServerGroupMember struct {
	ID         string    `db:"id" json:"id"`
	GroupID    string    `db:"group_id" json:"group_id"`
	ServerID   string    `db:"server_id" json:"server_id"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Joined from servers
	ServerName   *string `db:"server_name" json:"server_name,omitempty"`
	ServerStatus *string `db:"server_status" json:"server_status,omitempty"`
}
