package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"strings"
	"time"
)

// PushToken is a device token for push notifications. Tokens are only stored
// here and targeted by reminders.
type PushToken struct {
	Token        string        `json:"token"`
	AccountID    uuid.NullUUID `json:"account_id"`
	Platform     string        `json:"platform"`
	RegisteredAt time.Time     `json:"registered_at"`
}

var pushTokenColumns = []string{"token", "account_id", "platform", "registered_at"}

func scanPushToken(rows pgx.Rows) (PushToken, error) {
	var t PushToken
	err := rows.Scan(&t.Token,
		&t.AccountID,
		&t.Platform,
		&t.RegisteredAt)
	return t, err
}

// PushTokens retrieves all push tokens matching the given Query.
func (m *Mall) PushTokens(ctx context.Context, query Query) ([]PushToken, error) {
	q, err := m.buildSelect(TablePushTokens, pushTokenColumns, query, goqu.C("registered_at").Asc())
	if err != nil {
		return nil, errors.Wrap(err, "push tokens query", nil)
	}
	tokens, err := queryAll(ctx, m, q, scanPushToken)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return tokens, nil
}

// RegisterPushToken stores the given PushToken. If the token is already known,
// its account and platform are updated.
func (m *Mall) RegisterPushToken(ctx context.Context, t PushToken) (PushToken, error) {
	if strings.TrimSpace(t.Token) == "" {
		return PushToken{}, errors.NewBadRequestErr("missing push token", nil, nil)
	}
	if strings.TrimSpace(t.Platform) == "" {
		return PushToken{}, errors.NewBadRequestErr("missing platform", nil, nil)
	}
	t.RegisteredAt = time.Now().UTC()
	var accountID interface{}
	if t.AccountID.Valid {
		accountID = t.AccountID.UUID.String()
	}
	q, _, err := m.dialect.Insert(goqu.T(TablePushTokens)).Rows(goqu.Record{
		"token":         t.Token,
		"account_id":    accountID,
		"platform":      t.Platform,
		"registered_at": t.RegisteredAt,
	}).OnConflict(goqu.DoUpdate("token", goqu.Record{
		"account_id":    accountID,
		"platform":      t.Platform,
		"registered_at": t.RegisteredAt,
	})).ToSQL()
	if err != nil {
		return PushToken{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return PushToken{}, errors.NewExecQueryError(err, "exec register query", q)
	}
	m.notify(ctx, TablePushTokens, event.OperationUpdate, t.Token)
	return t, nil
}
