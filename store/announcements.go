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

// Announcement is a message from the organizers to all attendees.
type Announcement struct {
	ID        uuid.UUID    `json:"id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Author    nulls.String `json:"author"`
	CreatedAt time.Time    `json:"created_at"`
}

var announcementColumns = []string{"id", "title", "body", "author", "created_at"}

func scanAnnouncement(rows pgx.Rows) (Announcement, error) {
	var a Announcement
	err := rows.Scan(&a.ID,
		&a.Title,
		&a.Body,
		&a.Author,
		&a.CreatedAt)
	return a, err
}

// Announcements retrieves all announcements matching the given Query. By
// default, the newest ones come first.
func (m *Mall) Announcements(ctx context.Context, query Query) ([]Announcement, error) {
	q, err := m.buildSelect(TableTestAnnouncements, announcementColumns, query, goqu.C("created_at").Desc())
	if err != nil {
		return nil, errors.Wrap(err, "announcements query", nil)
	}
	announcements, err := queryAll(ctx, m, q, scanAnnouncement)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return announcements, nil
}

// PostAnnouncement creates the given Announcement with a new id and returns it.
func (m *Mall) PostAnnouncement(ctx context.Context, a Announcement) (Announcement, error) {
	if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Body) == "" {
		return Announcement{}, errors.NewBadRequestErr("announcement needs title and body", nil, nil)
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	q, _, err := m.dialect.Insert(goqu.T(TableTestAnnouncements)).Rows(goqu.Record{
		"id":         a.ID.String(),
		"title":      a.Title,
		"body":       a.Body,
		"author":     a.Author,
		"created_at": a.CreatedAt,
	}).ToSQL()
	if err != nil {
		return Announcement{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return Announcement{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	m.notify(ctx, TableTestAnnouncements, event.OperationInsert, a.ID.String())
	return a, nil
}

// DeleteAnnouncement deletes the Announcement with the given id.
func (m *Mall) DeleteAnnouncement(ctx context.Context, announcementID uuid.UUID) error {
	q, _, err := m.dialect.Delete(goqu.T(TableTestAnnouncements)).
		Where(goqu.C("id").Eq(announcementID.String())).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	err = m.execOne(ctx, q, "announcement not found")
	if err != nil {
		return errors.Wrap(err, "exec delete query", errors.Details{"announcement_id": announcementID})
	}
	m.notify(ctx, TableTestAnnouncements, event.OperationDelete, announcementID.String())
	return nil
}
