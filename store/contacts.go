package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"net/mail"
	"strings"
	"time"
)

// ContactInfo is a contact request or business card an attendee left.
type ContactInfo struct {
	ID        uuid.UUID    `json:"id"`
	AccountID uuid.UUID    `json:"account_id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Phone     nulls.String `json:"phone"`
	Message   nulls.String `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
}

var contactInfoColumns = []string{"id", "account_id", "name", "email", "phone", "message", "created_at"}

func scanContactInfo(rows pgx.Rows) (ContactInfo, error) {
	var c ContactInfo
	err := rows.Scan(&c.ID,
		&c.AccountID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Message,
		&c.CreatedAt)
	return c, err
}

// ContactInfos retrieves all contact infos matching the given Query. By
// default, the newest ones come first.
func (m *Mall) ContactInfos(ctx context.Context, query Query) ([]ContactInfo, error) {
	q, err := m.buildSelect(TableContactInfo, contactInfoColumns, query, goqu.C("created_at").Desc())
	if err != nil {
		return nil, errors.Wrap(err, "contact infos query", nil)
	}
	contacts, err := queryAll(ctx, m, q, scanContactInfo)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return contacts, nil
}

// CreateContactInfo creates the given ContactInfo with a new id and returns
// it.
func (m *Mall) CreateContactInfo(ctx context.Context, c ContactInfo) (ContactInfo, error) {
	if strings.TrimSpace(c.Name) == "" {
		return ContactInfo{}, errors.NewBadRequestErr("missing contact name", nil, nil)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return ContactInfo{}, errors.NewBadRequestErr("invalid contact email", err, errors.Details{"email": c.Email})
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	q, _, err := m.dialect.Insert(goqu.T(TableContactInfo)).Rows(goqu.Record{
		"id":         c.ID.String(),
		"account_id": c.AccountID.String(),
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Phone,
		"message":    c.Message,
		"created_at": c.CreatedAt,
	}).ToSQL()
	if err != nil {
		return ContactInfo{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return ContactInfo{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	m.notify(ctx, TableContactInfo, event.OperationInsert, c.ID.String())
	return c, nil
}
