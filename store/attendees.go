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

// AttendeeInfo is the public information an attendee shares with others.
type AttendeeInfo struct {
	AccountID uuid.UUID    `json:"account_id"`
	Name      string       `json:"name"`
	Company   nulls.String `json:"company"`
	Role      nulls.String `json:"role"`
	Bio       nulls.String `json:"bio"`
	UpdatedAt time.Time    `json:"updated_at"`
}

var attendeeInfoColumns = []string{"account_id", "name", "company", "role", "bio", "updated_at"}

func scanAttendeeInfo(rows pgx.Rows) (AttendeeInfo, error) {
	var a AttendeeInfo
	err := rows.Scan(&a.AccountID,
		&a.Name,
		&a.Company,
		&a.Role,
		&a.Bio,
		&a.UpdatedAt)
	return a, err
}

// AttendeeInfos retrieves all attendee infos matching the given Query. By
// default, they are ordered by name.
func (m *Mall) AttendeeInfos(ctx context.Context, query Query) ([]AttendeeInfo, error) {
	q, err := m.buildSelect(TableAttendeeInfo, attendeeInfoColumns, query, goqu.C("name").Asc())
	if err != nil {
		return nil, errors.Wrap(err, "attendee infos query", nil)
	}
	infos, err := queryAll(ctx, m, q, scanAttendeeInfo)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return infos, nil
}

func (m *Mall) upsertAttendeeInfoQuery(info AttendeeInfo) (string, error) {
	record := goqu.Record{
		"name":       info.Name,
		"company":    info.Company,
		"role":       info.Role,
		"bio":        info.Bio,
		"updated_at": info.UpdatedAt,
	}
	insertRecord := goqu.Record{"account_id": info.AccountID.String()}
	for k, v := range record {
		insertRecord[k] = v
	}
	q, _, err := m.dialect.Insert(goqu.T(TableAttendeeInfo)).
		Rows(insertRecord).
		OnConflict(goqu.DoUpdate("account_id", record)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// UpsertAttendeeInfo creates or updates the AttendeeInfo for its account.
func (m *Mall) UpsertAttendeeInfo(ctx context.Context, info AttendeeInfo) (AttendeeInfo, error) {
	if strings.TrimSpace(info.Name) == "" {
		return AttendeeInfo{}, errors.NewBadRequestErr("missing attendee name", nil, nil)
	}
	info.UpdatedAt = time.Now().UTC()
	q, err := m.upsertAttendeeInfoQuery(info)
	if err != nil {
		return AttendeeInfo{}, errors.Wrap(err, "upsert query", nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return AttendeeInfo{}, errors.NewExecQueryError(err, "exec upsert query", q)
	}
	m.notify(ctx, TableAttendeeInfo, event.OperationUpdate, info.AccountID.String())
	return info, nil
}
