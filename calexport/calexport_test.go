package calexport

import (
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func testEvent(title string, start string, end string) store.Event {
	return store.Event{
		ID:        uuid.New(),
		Title:     title,
		Date:      time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC),
		StartTime: start,
		EndTime:   end,
		CreatedAt: time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAgenda(t *testing.T) {
	keynote := testEvent("Keynote", "09:00", "10:00")
	keynote.Location = nulls.NewString("Main Hall")
	keynote.Topic = nulls.NewString("Opening")
	keynote.Speaker = nulls.NewString("Ada")
	lunch := testEvent("Lunch", "12:00", "13:00")
	cal, err := Agenda([]store.Event{keynote, lunch}, time.UTC, "DevConf")
	require.NoError(t, err, "should not fail")
	assert.Contains(t, cal, "BEGIN:VCALENDAR")
	assert.Contains(t, cal, "PRODID:"+ProductID)
	assert.Contains(t, cal, "X-WR-CALNAME:DevConf")
	assert.Contains(t, cal, "UID:"+keynote.ID.String()+"@"+uidDomain)
	assert.Contains(t, cal, "SUMMARY:Keynote")
	assert.Contains(t, cal, "DTSTART:20250813T090000Z")
	assert.Contains(t, cal, "DTEND:20250813T100000Z")
	assert.Contains(t, cal, "LOCATION:Main Hall")
	assert.Contains(t, cal, "CATEGORIES:Opening")
	assert.Contains(t, cal, "DESCRIPTION:Speaker: Ada")
	assert.Contains(t, cal, "SUMMARY:Lunch")
	assert.Contains(t, cal, "DTSTART:20250813T120000Z")
}

func TestAgenda_location(t *testing.T) {
	loc := time.FixedZone("conference", 2*60*60)
	cal, err := Agenda([]store.Event{testEvent("Keynote", "09:00", "10:00")}, loc, "")
	require.NoError(t, err, "should not fail")
	// Serialized in UTC.
	assert.Contains(t, cal, "DTSTART:20250813T070000Z")
	assert.NotContains(t, cal, "X-WR-CALNAME")
}

func TestAgenda_skipMalformed(t *testing.T) {
	ok := testEvent("Keynote", "09:00", "10:00")
	reversed := testEvent("Reversed", "11:00", "10:00")
	garbage := testEvent("Garbage", "soon", "later")
	cal, err := Agenda([]store.Event{reversed, ok, garbage}, time.UTC, "")
	require.NoError(t, err, "should not fail")
	assert.Contains(t, cal, "SUMMARY:Keynote")
	assert.NotContains(t, cal, "Reversed")
	assert.NotContains(t, cal, "Garbage")
}

func TestAgenda_empty(t *testing.T) {
	cal, err := Agenda(nil, time.UTC, "")
	require.NoError(t, err, "should not fail")
	assert.Contains(t, cal, "BEGIN:VCALENDAR")
	assert.NotContains(t, cal, "BEGIN:VEVENT")
}

func TestAgenda_missingLocation(t *testing.T) {
	_, err := Agenda(nil, nil, "")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest), "should fail with bad request")
}

func TestEventDescription(t *testing.T) {
	e := testEvent("Talk", "09:00", "10:00")
	assert.Equal(t, "", eventDescription(e))
	e.Description = nulls.NewString("About things")
	assert.Equal(t, "About things", eventDescription(e))
	e.Speaker = nulls.NewString("Ada")
	assert.Equal(t, "Speaker: Ada\nAbout things", eventDescription(e))
}
