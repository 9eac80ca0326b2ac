package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/serversoft/serversoft/internal/db/models"
)

var serverGroupCols = []string{"id", "user_id", "name", "description", "created_at", "updated_at", "member_count"}

var groupMemberCols = []string{"id", "group_id", "server_id", "order_index", "created_at", "server_name", "server_status"}

func newServerGroupRepo(t *testing.T) (*ServerGroupRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewServerGroupRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

func TestCreateGroup_DuplicateName(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectExec("INSERT INTO server_groups").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateGroup(context.Background(), &models.ServerGroup{UserID: "user-1", Name: "prod"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestGetGroup_WithMemberCount(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectQuery("SELECT.*member_count.*FROM server_groups g WHERE g.id = \\$1 AND g.user_id = \\$2").
		WithArgs("grp-1", "user-1").
		WillReturnRows(sqlmock.NewRows(serverGroupCols).
			AddRow("grp-1", "user-1", "prod", nil, time.Now(), time.Now(), 3))

	g, err := repo.GetGroup(context.Background(), "user-1", "grp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil || g.MemberCount != 3 {
		t.Errorf("unexpected group: %+v", g)
	}
}

func TestListGroups_Empty(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectQuery("SELECT.*FROM server_groups g WHERE g.user_id").
		WillReturnRows(sqlmock.NewRows(serverGroupCols))

	groups, err := repo.ListGroups(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if groups == nil || len(groups) != 0 {
		t.Errorf("expected empty slice, got %v", groups)
	}
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func TestListMembers_Ordered(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectQuery("SELECT.*FROM server_group_members m.*ORDER BY m.order_index").
		WithArgs("grp-1").
		WillReturnRows(sqlmock.NewRows(groupMemberCols).
			AddRow("m-1", "grp-1", "srv-b", 0, time.Now(), "b", "online").
			AddRow("m-2", "grp-1", "srv-a", 1, time.Now(), "a", "offline"))

	members, err := repo.ListMembers(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 2 || members[0].ServerID != "srv-b" {
		t.Errorf("unexpected members: %+v", members)
	}
}

func TestAddMember_AppendsAtEnd(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectQuery("INSERT INTO server_group_members.*COALESCE\\(MAX\\(order_index\\), -1\\) \\+ 1.*RETURNING order_index").
		WithArgs(sqlmock.AnyArg(), "grp-1", "srv-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_index"}).AddRow(4))

	m, err := repo.AddMember(context.Background(), "grp-1", "srv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.OrderIndex != 4 {
		t.Errorf("OrderIndex = %d, want 4", m.OrderIndex)
	}
}

func TestAddMember_AlreadyInGroup(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectQuery("INSERT INTO server_group_members").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.AddMember(context.Background(), "grp-1", "srv-1")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestRemoveMember_NotMember(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectExec("DELETE FROM server_group_members").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RemoveMember(context.Background(), "grp-1", "srv-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// ReorderMembers
// ---------------------------------------------------------------------------

func TestReorderMembers_AppliesInTransaction(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT server_id FROM server_group_members WHERE group_id = \\$1 FOR UPDATE").
		WithArgs("grp-1").
		WillReturnRows(sqlmock.NewRows([]string{"server_id"}).AddRow("a").AddRow("b").AddRow("c"))
	mock.ExpectExec("UPDATE server_group_members SET order_index").
		WithArgs("grp-1", "c", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE server_group_members SET order_index").
		WithArgs("grp-1", "a", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE server_group_members SET order_index").
		WithArgs("grp-1", "b", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE server_groups SET updated_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReorderMembers(context.Background(), "grp-1", []string{"c", "a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReorderMembers_PartialFailureRollsBack(t *testing.T) {
	repo, mock := newServerGroupRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT server_id FROM server_group_members").
		WillReturnRows(sqlmock.NewRows([]string{"server_id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec("UPDATE server_group_members SET order_index").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE server_group_members SET order_index").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if err := repo.ReorderMembers(context.Background(), "grp-1", []string{"b", "a"}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReorderMembers_Mismatch(t *testing.T) {
	tests := []struct {
		name     string
		proposed []string
	}{
		{"missing member", []string{"a"}},
		{"unknown member", []string{"a", "x"}},
		{"duplicate member", []string{"a", "a"}},
		{"extra member", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newServerGroupRepo(t)
			mock.ExpectBegin()
			mock.ExpectQuery("SELECT server_id FROM server_group_members").
				WillReturnRows(sqlmock.NewRows([]string{"server_id"}).AddRow("a").AddRow("b"))
			mock.ExpectRollback()

			err := repo.ReorderMembers(context.Background(), "grp-1", tt.proposed)
			if !errors.Is(err, ErrOrderMismatch) {
				t.Errorf("err = %v, want ErrOrderMismatch", err)
			}
		})
	}
}
