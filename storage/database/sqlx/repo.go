// Package sqlxrepos implements the application repositories on postgres with sqlx.
// Repository methods run on the executor passed to them (a *sqlx.Tx inside database.Transactor.WithinTx)
// or on the database otherwise.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type repository struct {
	db *sqlx.DB
}

func (repo repository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		ext, ok := svcExec[0].(sqlx.ExtContext)
		if !ok {
			panic(fmt.Sprintf("sqlxrepos: unsupported executor %T", svcExec[0]))
		}
		return ext
	}
	return repo.db
}

// trapNoRowsErr maps the "no rows" error to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// checkAffected returns notFound when res reports no affected row.
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

// orderBy renders ordering, or def when it is empty. Fields are checked by the services.
func orderBy(ordering []core.DBOrdering, def string) []string {
	if len(ordering) == 0 {
		return []string{def}
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return orderList
}

func (repo repository) getContext(ctx context.Context, exec []core.DBExecutor, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, repo.getExec(exec), dest, q, args...)
}

func (repo repository) selectContext(ctx context.Context, exec []core.DBExecutor, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, repo.getExec(exec), dest, q, args...)
}

func (repo repository) execContext(ctx context.Context, exec []core.DBExecutor, query sq.Sqlizer) (sql.Result, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return repo.getExec(exec).ExecContext(ctx, q, args...)
}

// exists wraps query in SELECT EXISTS.
func exists(query sq.SelectBuilder) sq.SelectBuilder {
	return query.Prefix("SELECT EXISTS (").Suffix(")")
}

// likePattern matches s anywhere, its LIKE wildcards taken literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
