package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers that mean "another transaction got there first".
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)

// MySQLStore implements Store on top of a MySQL connection pool.  Each
// document row carries a version column; writes are conditional on it, so
// a transaction that lost a race affects zero rows and reports ErrConflict.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying pool.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// RunInTx implements Store.
func (s *MySQLStore) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

// PendingPromotionEvents implements Store.
func (s *MySQLStore) PendingPromotionEvents(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM events WHERE pending_promotions > 0 AND status = 'OPEN' ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mysqlTx implements Tx over a *sql.Tx.  Its methods live in the
// *_repository.go files next to this one.
type mysqlTx struct {
	tx *sql.Tx
}

// translate maps driver errors that signal a lost race onto ErrConflict and
// sql.ErrNoRows onto ErrNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry, errLockWaitTimeout, errDeadlock:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		}
	}
	return err
}

// expectOne turns an UPDATE guarded by a version predicate into ErrConflict
// when no row matched.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
