package models

import "time"

// Software is a catalog entry. The catalog is reference data shared by all
// users and maintained by admins.
type Software struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Category         string    `db:"category" json:"category"`
	Version          string    `db:"version" json:"version"`
	Description      string    `db:"description" json:"description"`
	ArtifactPath     *string   `db:"artifact_path" json:"-"`
	ArtifactChecksum *string   `db:"artifact_checksum" json:"artifact_checksum,omitempty"`
	ArtifactSize     *int64    `db:"artifact_size" json:"artifact_size,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// HasArtifact reports whether an installer artifact has been uploaded.
func (s *Software) HasArtifact() bool {
	return s.ArtifactPath != nil && *s.ArtifactPath != ""
}
