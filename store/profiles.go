package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"strings"
	"time"
)

// Profile is the display profile of an account.
type Profile struct {
	AccountID   uuid.UUID    `json:"account_id"`
	DisplayName string       `json:"display_name"`
	AvatarURL   nulls.String `json:"avatar_url"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

var profileColumns = []string{"account_id", "display_name", "avatar_url", "updated_at"}

func scanProfile(rows pgx.Rows) (Profile, error) {
	var p Profile
	err := rows.Scan(&p.AccountID,
		&p.DisplayName,
		&p.AvatarURL,
		&p.UpdatedAt)
	return p, err
}

// Profiles retrieves all profiles matching the given Query.
func (m *Mall) Profiles(ctx context.Context, query Query) ([]Profile, error) {
	q, err := m.buildSelect(TableTestProfiles, profileColumns, query, goqu.C("display_name").Asc())
	if err != nil {
		return nil, errors.Wrap(err, "profiles query", nil)
	}
	profiles, err := queryAll(ctx, m, q, scanProfile)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return profiles, nil
}

// UpsertProfile creates or updates the Profile for its account.
func (m *Mall) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if strings.TrimSpace(p.DisplayName) == "" {
		return Profile{}, errors.NewBadRequestErr("missing display name", nil, nil)
	}
	p.UpdatedAt = time.Now().UTC()
	q, _, err := m.dialect.Insert(goqu.T(TableTestProfiles)).Rows(goqu.Record{
		"account_id":   p.AccountID.String(),
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"updated_at":   p.UpdatedAt,
	}).OnConflict(goqu.DoUpdate("account_id", goqu.Record{
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"updated_at":   p.UpdatedAt,
	})).ToSQL()
	if err != nil {
		return Profile{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return Profile{}, errors.NewExecQueryError(err, "exec upsert query", q)
	}
	m.notify(ctx, TableTestProfiles, event.OperationUpdate, p.AccountID.String())
	return p, nil
}
