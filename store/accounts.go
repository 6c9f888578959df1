package store

import (
	"context"
	nativeerrors "errors"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"strings"
	"time"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// Account is a registered user.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	Name         string
	IsAdmin      bool
	CreatedAt    time.Time
}

var accountColumns = []string{"id", "email", "password_hash", "name", "is_admin", "created_at"}

func scanAccount(rows pgx.Rows) (Account, error) {
	var a Account
	err := rows.Scan(&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Name,
		&a.IsAdmin,
		&a.CreatedAt)
	return a, err
}

// NormalizeEmail lowercases and trims the given email so that lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount creates the given Account with a new id. If the email is
// already taken, an errors.ErrBadRequest error is returned.
func (m *Mall) CreateAccount(ctx context.Context, a Account) (Account, error) {
	a.ID = uuid.New()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = time.Now().UTC()
	q, _, err := m.dialect.Insert(goqu.T(TableAccounts)).Rows(goqu.Record{
		"id":            a.ID.String(),
		"email":         a.Email,
		"password_hash": string(a.PasswordHash),
		"name":          a.Name,
		"is_admin":      a.IsAdmin,
		"created_at":    a.CreatedAt,
	}).ToSQL()
	if err != nil {
		return Account{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		var pgErr *pgconn.PgError
		if nativeerrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Account{}, errors.NewBadRequestErr("email already registered", err, errors.Details{"email": a.Email})
		}
		return Account{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	m.notify(ctx, TableAccounts, event.OperationInsert, a.ID.String())
	return a, nil
}

// accountBy retrieves the account matching the given expression.
func (m *Mall) accountBy(ctx context.Context, where goqu.Ex) (Account, error) {
	q, err := m.buildSelect(TableAccounts, accountColumns, Query{Where: where, Limit: 1})
	if err != nil {
		return Account{}, errors.Wrap(err, "account query", nil)
	}
	accounts, err := queryAll(ctx, m, q, scanAccount)
	if err != nil {
		return Account{}, errors.Wrap(err, "query all", nil)
	}
	if len(accounts) == 0 {
		return Account{}, errors.NewResourceNotFoundError("account not found", nil)
	}
	return accounts[0], nil
}

// AccountByEmail retrieves the Account with the given email.
func (m *Mall) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return m.accountBy(ctx, goqu.Ex{"email": NormalizeEmail(email)})
}

// AccountByID retrieves the Account with the given id.
func (m *Mall) AccountByID(ctx context.Context, accountID uuid.UUID) (Account, error) {
	return m.accountBy(ctx, goqu.Ex{"id": accountID.String()})
}
