package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/retail-ledger/ledger"
)

// classify maps driver failures onto the ledger's transient kinds. Other
// errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if ledger.IsRetryable(err) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ledger.ErrConflictRetryable, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintPrimaryKey) ||
		isConstraint(err, sqlite3.ErrConstraintUnique)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintForeignKey)
}
