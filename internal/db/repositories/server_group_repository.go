// server_group_repository.go implements ServerGroupRepository: groups, their
// members and the persisted drag-and-drop order.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/serversoft/serversoft/internal/db/models"
)

// ErrOrderMismatch is returned by ReorderMembers when the supplied server IDs
// are not exactly the group's current members.
var ErrOrderMismatch = errors.New("order must list every group member exactly once")

// ServerGroupRepository handles server group database operations
type ServerGroupRepository struct {
	db *sqlx.DB
}

// NewServerGroupRepository creates a new ServerGroupRepository
func NewServerGroupRepository(db *sqlx.DB) *ServerGroupRepository {
	return &ServerGroupRepository{db: db}
}

const serverGroupSelect = `
	SELECT g.id, g.user_id, g.name, g.description, g.created_at, g.updated_at,
		(SELECT COUNT(*) FROM server_group_members m WHERE m.group_id = g.id) AS member_count
	FROM server_groups g
`

// CreateGroup inserts a group. Names are unique per user.
func (r *ServerGroupRepository) CreateGroup(ctx context.Context, g *models.ServerGroup) error {
	g.ID = uuid.New().String()
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt

	query := `
		INSERT INTO server_groups (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.UserID, g.Name, g.Description, g.CreatedAt, g.UpdatedAt)
	return translateError(err)
}

// GetGroup retrieves a group owned by userID.
func (r *ServerGroupRepository) GetGroup(ctx context.Context, userID, id string) (*models.ServerGroup, error) {
	var g models.ServerGroup
	err := r.db.GetContext(ctx, &g, serverGroupSelect+` WHERE g.id = $1 AND g.user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns the user's groups with member counts.
func (r *ServerGroupRepository) ListGroups(ctx context.Context, userID string) ([]*models.ServerGroup, error) {
	groups := make([]*models.ServerGroup, 0)
	if err := r.db.SelectContext(ctx, &groups, serverGroupSelect+` WHERE g.user_id = $1 ORDER BY g.name`, userID); err != nil {
		return nil, err
	}
	return groups, nil
}

// UpdateGroup renames or re-describes a group.
func (r *ServerGroupRepository) UpdateGroup(ctx context.Context, g *models.ServerGroup) error {
	g.UpdatedAt = time.Now()
	query := `UPDATE server_groups SET name = $3, description = $4, updated_at = $5 WHERE id = $1 AND user_id = $2`
	return expectOne(r.db.ExecContext(ctx, query, g.ID, g.UserID, g.Name, g.Description, g.UpdatedAt))
}

// DeleteGroup removes a group; memberships cascade.
func (r *ServerGroupRepository) DeleteGroup(ctx context.Context, userID, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM server_groups WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListMembers returns a group's members in order. The caller must have
// checked group ownership.
func (r *ServerGroupRepository) ListMembers(ctx context.Context, groupID string) ([]*models.ServerGroupMember, error) {
	query := `
		SELECT m.id, m.group_id, m.server_id, m.order_index, m.created_at,
			s.name AS server_name, s.status AS server_status
		FROM server_group_members m
		JOIN servers s ON s.id = m.server_id
		WHERE m.group_id = $1
		ORDER BY m.order_index, m.created_at
	`
	members := make([]*models.ServerGroupMember, 0)
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember appends a server to the end of a group. Adding a server twice
// returns ErrDuplicate.
func (r *ServerGroupRepository) AddMember(ctx context.Context, groupID, serverID string) (*models.ServerGroupMember, error) {
	m := &models.ServerGroupMember{
		ID:        uuid.New().String(),
		GroupID:   groupID,
		ServerID:  serverID,
		CreatedAt: time.Now(),
	}
	query := `
		INSERT INTO server_group_members (id, group_id, server_id, order_index, created_at)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(order_index), -1) + 1 FROM server_group_members WHERE group_id = $2),
			$4)
		RETURNING order_index
	`
	if err := r.db.QueryRowxContext(ctx, query, m.ID, groupID, serverID, m.CreatedAt).Scan(&m.OrderIndex); err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

// RemoveMember takes a server out of a group.
func (r *ServerGroupRepository) RemoveMember(ctx context.Context, groupID, serverID string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM server_group_members WHERE group_id = $1 AND server_id = $2`, groupID, serverID))
}

// ReorderMembers assigns order_index 0..n-1 following serverIDs. The list
// must be a permutation of the current members; all updates apply in one
// transaction or not at all.
func (r *ServerGroupRepository) ReorderMembers(ctx context.Context, groupID string, serverIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	var current []string
	if err := tx.SelectContext(ctx, &current,
		`SELECT server_id FROM server_group_members WHERE group_id = $1 FOR UPDATE`, groupID,
	); err != nil {
		return err
	}
	if !samePermutation(current, serverIDs) {
		return ErrOrderMismatch
	}

	for i, serverID := range serverIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE server_group_members SET order_index = $3 WHERE group_id = $1 AND server_id = $2`,
			groupID, serverID, i,
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE server_groups SET updated_at = $2 WHERE id = $1`, groupID, time.Now(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func samePermutation(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	seen := make(map[string]bool, len(current))
	for _, id := range current {
		seen[id] = true
	}
	for _, id := range proposed {
		if !seen[id] {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}
