// Package calexport renders the conference agenda as iCalendar feed.
package calexport

import (
	"fmt"
	ics "github.com/arran4/golang-ical"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/store"
	"strings"
	"time"
)

// ProductID is used as PRODID of exported calendars.
const ProductID = "-//confcomp//agenda//EN"

// uidDomain is appended to event ids in order to build globally unique UIDs.
const uidDomain = "confcomp"

// Agenda renders the given events as iCalendar with the given name. Times of
// events are interpreted in the given time.Location. Events with malformed
// times are skipped.
func Agenda(events []store.Event, loc *time.Location, name string) (string, error) {
	if loc == nil {
		return "", errors.NewBadRequestErr("missing location", nil, nil)
	}
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(loc.String())
	for _, e := range events {
		item, err := e.ScheduledItem()
		if err != nil {
			continue
		}
		addEvent(cal, e, item, loc)
	}
	return cal.Serialize(), nil
}

// eventTime returns the time of the given agenda.Clock at the day of the event.
func eventTime(date time.Time, clock agenda.Clock, loc *time.Location) time.Time {
	date = date.UTC()
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hours(), clock.Minutes(), 0, 0, loc)
}

func addEvent(cal *ics.Calendar, e store.Event, item agenda.ScheduledItem, loc *time.Location) {
	start := eventTime(e.Date, item.Start, loc)
	end := eventTime(e.Date, item.End, loc)
	vEvent := cal.AddEvent(fmt.Sprintf("%s@%s", e.ID.String(), uidDomain))
	stamp := e.CreatedAt
	if stamp.IsZero() {
		stamp = start
	}
	vEvent.SetDtStampTime(stamp)
	vEvent.SetStartAt(start)
	vEvent.SetEndAt(end)
	vEvent.SetSummary(e.Title)
	if description := eventDescription(e); description != "" {
		vEvent.SetDescription(description)
	}
	if e.Location.Valid {
		vEvent.SetLocation(e.Location.String)
	}
	if e.Topic.Valid {
		vEvent.AddProperty(ics.ComponentPropertyCategories, e.Topic.String)
	}
}

// eventDescription combines speaker and description.
func eventDescription(e store.Event) string {
	lines := make([]string, 0, 2)
	if e.Speaker.Valid && e.Speaker.String != "" {
		lines = append(lines, "Speaker: "+e.Speaker.String)
	}
	if e.Description.Valid && e.Description.String != "" {
		lines = append(lines, e.Description.String)
	}
	return strings.Join(lines, "\n")
}
