package models

import "time"

// Credential verification states.
const (
	VerificationUnverified = "unverified"
	VerificationValid      = "valid"
	VerificationInvalid    = "invalid"
)

// CloudCredential is a named, provider-typed credential set. Fields holds
// non-secret values in clear; Secrets holds each secret value encrypted
// individually as ivHex:cipherHex.
type CloudCredential struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	Name               string     `db:"name" json:"name"`
	Provider           string     `db:"provider" json:"provider"`
	Fields             StringMap  `db:"fields" json:"fields"`
	Secrets            StringMap  `db:"secrets" json:"-"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	VerificationError  *string    `db:"verification_error" json:"verification_error,omitempty"`
	LastVerifiedAt     *time.Time `db:"last_verified_at" json:"last_verified_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
