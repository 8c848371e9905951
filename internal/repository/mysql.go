// Package repository implements the MySQL backend of the store contract.
// Each entity's queries live in their own file; this file holds the
// transaction plumbing and the mapping of MySQL duplicate-key errors
// onto the store sentinels.
package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/go-sql-driver/mysql"

    "github.com/clubops/treasury/internal/store"
)

// MySQL satisfies store.Store on top of database/sql.
type MySQL struct {
    db *sql.DB
}

// New returns a MySQL store bound to the given database.
func New(db *sql.DB) *MySQL { return &MySQL{db: db} }

// InTx runs fn inside one database transaction.  Any error from fn rolls
// the transaction back; duplicate-key errors are translated to the store
// sentinels before they reach the caller.
func (m *MySQL) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
    sqlTx, err := m.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    if err := fn(&mysqlTx{tx: sqlTx}); err != nil {
        _ = sqlTx.Rollback()
        return translateDup(err)
    }
    return sqlTx.Commit()
}

// Close releases the underlying connection pool.
func (m *MySQL) Close() error { return m.db.Close() }

// mysqlTx implements store.Tx for the lifetime of one sql.Tx.
type mysqlTx struct {
    tx *sql.Tx
}

// translateDup maps MySQL error 1062 (duplicate entry) onto a store
// sentinel by inspecting the violated index name.  Unknown duplicates
// pass through unchanged.
func translateDup(err error) error {
    var me *mysql.MySQLError
    if !errors.As(err, &me) || me.Number != 1062 {
        return err
    }
    switch {
    case strings.Contains(me.Message, "uniq_settlement"):
        return store.ErrDuplicateSettlement
    case strings.Contains(me.Message, "uniq_sub_member"), strings.Contains(me.Message, "uniq_sub_external"):
        return store.ErrDuplicateHolder
    case strings.Contains(me.Message, "uniq_list_role"):
        return store.ErrDuplicateRole
    case strings.Contains(me.Message, "uniq_account_name"):
        return store.ErrDuplicateName
    }
    return err
}
