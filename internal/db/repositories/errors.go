package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned by updates and deletes that matched no row
	// owned by the caller. Single-row reads return (nil, nil) instead.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
	// ErrInUse is returned when a delete is blocked by a row that still
	// references the record.
	ErrInUse = errors.New("record is still referenced")
)

// PostgreSQL SQLSTATEs mapped onto sentinels.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgForeignKeyViolation:
			return ErrInUse
		}
	}
	return err
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// expectOne returns ErrNotFound when the statement touched no rows.
func expectOne(res rowsAffecter, err error) error {
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
