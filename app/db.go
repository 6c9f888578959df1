package app

import (
	"context"
	nativeerrors "errors"
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/confcomp-server/embedded"
	"github.com/lefinal/confcomp-server/errors"
	"go.uber.org/zap"
)

// keyValTable is the table that holds internal key-value pairs like the
// database version.
const keyValTable = "confcomp"

// keyDBVersion is the key in keyValTable for the database version.
const keyDBVersion = "db-version"

// pgUndefinedTable is the PostgreSQL error code for missing relations.
const pgUndefinedTable = "42P01"

// dbVersion is used for determining the current database version. This is saved
// in a special table when properly set up. If the version does not exist, one
// can know that the database needs to be initialized. If it is and the latest
// version is greater, migrations can be performed.
type dbVersion string

// dbVersionZero is used when no database version could be found, and therefore
// we conclude that it has not been initialized yet.
const dbVersionZero dbVersion = "0"

// dbMigration is used for performing and checking database migrations. They lie
// in dbMigrations which is an ordered list of versions with their migrations.
type dbMigration struct {
	version dbVersion
	up      string
}

// dbMigrations are the sql migrations in an ordered (!) list. The order is used
// to determine which migrations need to be done when the current database
// version is not the latest one.
var dbMigrations = []dbMigration{
	{
		version: "1.0",
		up:      embedded.DBMigration1x0,
	},
	{
		version: "1.1",
		up:      embedded.DBMigration1x1,
	},
}

// connectDB connects to the database with the given connection string,
// performs migrations and returns the connection pool.
func connectDB(ctx context.Context, logger *zap.Logger, connectionStr string, maxDBConnections int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connectionStr)
	if err != nil {
		return nil, errors.NewBadRequestErr("parse db connection string", err, nil)
	}
	poolConfig.MaxConns = maxDBConnections
	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.FromErr("connect to database", errors.ErrCommunication, err, nil)
	}
	err = testDBConnection(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "test db connection", nil)
	}
	err = performDBMigrations(ctx, logger, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "perform db migrations", nil)
	}
	return db, nil
}

// testDBConnection tests the database connection by simply querying 1.
func testDBConnection(ctx context.Context, db *pgxpool.Pool) error {
	q, _, err := goqu.Select(goqu.V(1)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	var got int
	err = db.QueryRow(ctx, q).Scan(&got)
	if err != nil {
		return errors.NewScanDBRowError(err, "test query failed", q)
	}
	if got != 1 {
		return errors.NewInternalError(fmt.Sprintf("test db connection: expected 1 as result but got %d", got),
			errors.Details{"got": got})
	}
	return nil
}

// performDBMigrations performs all needed database migrations according to the
// (un)set database version. Migrations and the version update happen in a
// single transaction.
func performDBMigrations(ctx context.Context, logger *zap.Logger, db *pgxpool.Pool) error {
	currentVersion, err := retrieveCurrentDBVersion(ctx, db)
	if err != nil {
		return errors.Wrap(err, "retrieve current db version", nil)
	}
	logger.Info("current database version", zap.String("version", string(currentVersion)))
	migrationsToDo, err := getDBMigrationsToDo(currentVersion)
	if err != nil {
		return errors.Wrap(err, "get db migrations to do", nil)
	}
	if len(migrationsToDo) == 0 {
		return nil
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	var newVersion dbVersion
	for i, migration := range migrationsToDo {
		logger.Info(fmt.Sprintf("performing database migration %d/%d...", i+1, len(migrationsToDo)),
			zap.String("target_version", string(migration.version)))
		_, err = tx.Exec(ctx, migration.up)
		if err != nil {
			rollbackTx(ctx, logger, tx, "database migration failed")
			return errors.NewExecQueryError(err, "exec migration", migration.up)
		}
		newVersion = migration.version
	}
	updateDBVersionQuery, err := dbVersionUpdateQuery(currentVersion, newVersion)
	if err != nil {
		rollbackTx(ctx, logger, tx, "update database version query to sql failed")
		return errors.Wrap(err, "db version update query", nil)
	}
	_, err = tx.Exec(ctx, updateDBVersionQuery)
	if err != nil {
		rollbackTx(ctx, logger, tx, "update database version failed")
		return errors.NewExecQueryError(err, "exec db version update query", updateDBVersionQuery)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	logger.Info("database migrated", zap.String("version", string(newVersion)))
	return nil
}

// dbVersionUpdateQuery builds the query for setting the database version to
// newVersion. If the current version is dbVersionZero, the version entry is
// inserted.
func dbVersionUpdateQuery(currentVersion dbVersion, newVersion dbVersion) (string, error) {
	var q string
	var err error
	if currentVersion == dbVersionZero {
		q, _, err = goqu.Dialect("postgres").Insert(goqu.T(keyValTable)).Rows(goqu.Record{
			"key":   keyDBVersion,
			"value": string(newVersion),
		}).ToSQL()
	} else {
		q, _, err = goqu.Dialect("postgres").Update(goqu.T(keyValTable)).
			Set(goqu.Record{"value": string(newVersion)}).
			Where(goqu.C("key").Eq(keyDBVersion)).ToSQL()
	}
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// getDBMigrationsToDo retrieves all database migrations that need to be
// performed. If the version is dbVersionZero, it will return all migrations. If
// the version is unknown, an error will be returned.
func getDBMigrationsToDo(currentVersion dbVersion) ([]dbMigration, error) {
	if currentVersion == dbVersionZero {
		return dbMigrations, nil
	}
	found := false
	migrationsToDo := make([]dbMigration, 0)
	for _, migration := range dbMigrations {
		if migration.version == currentVersion {
			if found {
				return nil, errors.NewInternalError(fmt.Sprintf("duplicate database version %v in available migrations",
					currentVersion), errors.Details{"version": currentVersion})
			}
			found = true
			// Continue with next one as we already performed everything for this
			// database version.
			continue
		}
		if found {
			migrationsToDo = append(migrationsToDo, migration)
		}
	}
	if !found {
		return nil, errors.NewResourceNotFoundError(fmt.Sprintf("no database version found matching %v", currentVersion),
			errors.Details{"version": currentVersion})
	}
	return migrationsToDo, nil
}

// retrieveCurrentDBVersion retrieves the current dbVersion from the given
// database. If no version could be found, dbVersionZero will be returned.
func retrieveCurrentDBVersion(ctx context.Context, db *pgxpool.Pool) (dbVersion, error) {
	versionStr, err := retrieveKeyValFromDB(ctx, db, keyDBVersion)
	if err != nil {
		if errors.HasCode(err, errors.ErrNotFound) {
			return dbVersionZero, nil
		}
		return "", errors.Wrap(err, "retrieve key val from db", nil)
	}
	return dbVersion(versionStr), nil
}

// retrieveKeyValFromDB retrieves the value for the given key from the given
// database. If the key or the table itself does not exist, an
// errors.ErrNotFound error is returned.
func retrieveKeyValFromDB(ctx context.Context, db *pgxpool.Pool, key string) (string, error) {
	q, _, err := goqu.Dialect("postgres").From(goqu.T(keyValTable)).
		Select(goqu.C("value")).
		Where(goqu.C("key").Eq(key)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"key": key})
	}
	var value string
	err = db.QueryRow(ctx, q).Scan(&value)
	if err != nil {
		if isUndefinedTableErr(err) {
			return "", errors.NewResourceNotFoundError("key-value relation not found", nil)
		}
		if nativeerrors.Is(err, pgx.ErrNoRows) {
			return "", errors.NewResourceNotFoundError(fmt.Sprintf("no entry with key %s found", key),
				errors.Details{"key": key})
		}
		return "", errors.NewScanDBRowError(err, "scan value", q)
	}
	return value, nil
}

// isUndefinedTableErr checks whether the given error is caused by a missing
// relation.
func isUndefinedTableErr(err error) bool {
	var pgErr *pgconn.PgError
	return nativeerrors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

// rollbackTx rolls back the given pgx.Tx. The encapsulation is needed because
// rolling back might return an error which does not need to be returned but
// definitely logged with the original reason the rollback was performed.
func rollbackTx(ctx context.Context, logger *zap.Logger, tx pgx.Tx, reason string) {
	err := tx.Rollback(ctx)
	if err != nil {
		errors.Log(logger, errors.NewInternalErrorFromErr(err, "rollback tx", errors.Details{"rollback_reason": reason}))
	}
}
