// Package store provides persistence for all conference tables in a
// PostgreSQL database.
package store

import (
	"context"
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"go.uber.org/zap"
)

// Table names.
const (
	TableEvents            = "events"
	TableAttendeeInfo      = "attendee_info"
	TableContactInfo       = "contact_info"
	TableTestAnnouncements = "test_announcements"
	TableTestProfiles      = "test_profiles"
	TableAccounts          = "accounts"
	TablePushTokens        = "push_tokens"
)

// ChangeNotifier is notified about each successful write.
type ChangeNotifier interface {
	// NotifyChange notifies about the given operation on the row with the given
	// id in the table.
	NotifyChange(ctx context.Context, table string, operation event.Operation, rowID string)
}

// nopNotifier is a ChangeNotifier that does nothing.
type nopNotifier struct{}

func (nopNotifier) NotifyChange(_ context.Context, _ string, _ event.Operation, _ string) {}

// Mall implements all database operations.
type Mall struct {
	logger *zap.Logger
	// db is the actual database to perform operations in.
	db *pgxpool.Pool
	// dialect is the SQL dialect for building queries.
	dialect goqu.DialectWrapper
	// notifier is notified after successful writes.
	notifier ChangeNotifier
}

// NewMall creates a new Mall using the given database. It uses the PostgreSQL
// dialect for queries. If the ChangeNotifier is nil, changes are not
// propagated.
func NewMall(logger *zap.Logger, db *pgxpool.Pool, notifier ChangeNotifier) *Mall {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Mall{
		logger:   logger,
		db:       db,
		dialect:  goqu.Dialect("postgres"),
		notifier: notifier,
	}
}

// Query describes which rows to select. The zero value selects all rows in
// the default order of the table.
type Query struct {
	// Where filters by column values. Keys must be known columns of the table.
	Where goqu.Ex
	// OrderBy is an optional column to order by.
	OrderBy string
	// Descending reverses the order of OrderBy.
	Descending bool
	// Limit limits the number of returned rows if greater than zero.
	Limit uint
}

// apply the Query to the given goqu.SelectDataset. Unknown columns result in an
// errors.ErrBadRequest error. If no order is set in the Query, defaultOrder is
// used.
func (q Query) apply(ds *goqu.SelectDataset, columns []string, defaultOrder ...exp.OrderedExpression) (*goqu.SelectDataset, error) {
	known := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		known[column] = struct{}{}
	}
	if len(q.Where) > 0 {
		for column := range q.Where {
			if _, ok := known[column]; !ok {
				return nil, errors.NewBadRequestErr(fmt.Sprintf("unknown filter column %s", column), nil,
					errors.Details{"column": column})
			}
		}
		ds = ds.Where(q.Where)
	}
	if q.OrderBy != "" {
		if _, ok := known[q.OrderBy]; !ok {
			return nil, errors.NewBadRequestErr(fmt.Sprintf("unknown order column %s", q.OrderBy), nil,
				errors.Details{"column": q.OrderBy})
		}
		if q.Descending {
			ds = ds.Order(goqu.C(q.OrderBy).Desc())
		} else {
			ds = ds.Order(goqu.C(q.OrderBy).Asc())
		}
	} else if len(defaultOrder) > 0 {
		ds = ds.Order(defaultOrder...)
	}
	if q.Limit > 0 {
		ds = ds.Limit(q.Limit)
	}
	return ds, nil
}

// selectColumns converts the given column names to goqu selections.
func selectColumns(columns []string) []interface{} {
	selection := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		selection = append(selection, goqu.C(column))
	}
	return selection
}

// buildSelect builds the select query for the table with the given columns.
func (m *Mall) buildSelect(table string, columns []string, query Query, defaultOrder ...exp.OrderedExpression) (string, error) {
	ds, err := query.apply(m.dialect.From(goqu.T(table)).Select(selectColumns(columns)...), columns, defaultOrder...)
	if err != nil {
		return "", errors.Wrap(err, "apply query", nil)
	}
	q, _, err := ds.ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"table": table})
	}
	return q, nil
}

// execOne executes the given query and assures that exactly one row was affected.
// Otherwise, an errors.ErrNotFound error with the given message is returned.
func (m *Mall) execOne(ctx context.Context, q string, notFoundMessage string) error {
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec query", q)
	}
	if result.RowsAffected() != 1 {
		return errors.NewResourceNotFoundError(notFoundMessage, nil)
	}
	return nil
}

// queryAll runs the given query and scans each row using the given scan
// function.
func queryAll[T any](ctx context.Context, m *Mall, q string, scan func(rows pgx.Rows) (T, error)) ([]T, error) {
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query db", q)
	}
	defer rows.Close()
	result := make([]T, 0)
	for rows.Next() {
		entity, err := scan(rows)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		result = append(result, entity)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.NewExecQueryError(err, "read rows", q)
	}
	return result, nil
}

// notify the ChangeNotifier about a successful write.
func (m *Mall) notify(ctx context.Context, table string, operation event.Operation, rowID string) {
	m.logger.Debug("row changed",
		zap.String("table", table),
		zap.String("operation", string(operation)),
		zap.String("row_id", rowID))
	m.notifier.NotifyChange(ctx, table, operation, rowID)
}

// rollbackTx rolls back the given pgx.Tx. The encapsulation is needed because
// rolling back might return an error which does not need to be returned but
// definitely logged with the original reason the rollback was performed.
func (m *Mall) rollbackTx(ctx context.Context, tx pgx.Tx, reason string) {
	err := tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		errors.Log(m.logger, errors.Error{
			Code:    errors.ErrInternal,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"rollbackReason": reason},
		})
	}
}
