package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
)

const uniqueViolation = pq.ErrorCode("23505")

type repository struct {
	exec core.DBExecutor
}

// getExec returns the executor passed by the service (a transaction) or the repo's default one.
func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps psql unique violations to a *core.ConflictError
func trapUniqueErr(err error, conflictMsg, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return core.NewConflictError(conflictMsg)
	}
	return errors.Wrap(err, msg)
}

// isUUID avoids sending malformed ids to postgres, which would fail with a syntax error.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func checkAffected(res sql.Result, notFound error, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// exists runs a "SELECT EXISTS (...)" query
func (repo repository) exists(ctx context.Context, exec core.DBExecutor, msg, q string, args ...interface{}) (bool, error) {
	var ok bool
	if err := sqlx.GetContext(ctx, exec, &ok, q, args...); err != nil {
		return false, errors.Wrap(err, msg)
	}
	return ok, nil
}
