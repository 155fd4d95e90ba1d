package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/warp/retail-ledger/ledger"
)

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeLockNotAvailable:
			return fmt.Errorf("%w: %w", ledger.ErrConflictRetryable, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == codeTooManyConnections,
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnectNow:
			return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
