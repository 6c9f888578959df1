package agenda

import (
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/confcomp-server/errors"
)

// ScheduledItem is a time-bounded agenda entry like a talk, session or break.
// Start and End are on the same day.
type ScheduledItem struct {
	// ID identifies the item. It must be unique within a day.
	ID string
	// Title is the human-readable title.
	Title string
	// Start is the inclusive start time.
	Start Clock
	// End is the exclusive end time.
	End Clock
	// Location is an optional room or venue.
	Location nulls.String
	// Topic is an optional track or topic.
	Topic nulls.String
}

// NewScheduledItem creates a ScheduledItem from the stored 24-hour start and end
// times. Items with an end that is not after the start are rejected.
func NewScheduledItem(id string, title string, start string, end string) (ScheduledItem, error) {
	startClock, err := ParseClock(start)
	if err != nil {
		return ScheduledItem{}, errors.Wrap(err, "parse start", errors.Details{"item": id})
	}
	endClock, err := ParseClock(end)
	if err != nil {
		return ScheduledItem{}, errors.Wrap(err, "parse end", errors.Details{"item": id})
	}
	item := ScheduledItem{
		ID:    id,
		Title: title,
		Start: startClock,
		End:   endClock,
	}
	if err = item.validate(); err != nil {
		return ScheduledItem{}, err
	}
	return item, nil
}

// validate assures that the item has a positive duration within one day.
func (item ScheduledItem) validate() error {
	if !item.Start.Valid() || !item.End.Valid() {
		return errors.NewBadRequestErr(fmt.Sprintf("times of item %s out of range", item.ID), nil,
			errors.Details{"item": item.ID, "start": int(item.Start), "end": int(item.End)})
	}
	if item.Start >= item.End {
		return errors.NewBadRequestErr(fmt.Sprintf("item %s does not end after it starts", item.ID), nil,
			errors.Details{"item": item.ID, "start": item.Start.String(), "end": item.End.String()})
	}
	return nil
}

// overlaps checks if the half-open intervals of both items intersect. Touching
// intervals do not overlap.
func (item ScheduledItem) overlaps(other ScheduledItem) bool {
	return item.Start < other.End && other.Start < item.End
}

// contains checks whether the item fully encloses the other one.
func (item ScheduledItem) contains(other ScheduledItem) bool {
	return item.Start <= other.Start && item.End >= other.End
}

// validateItems validates each item and assures unique ids.
func validateItems(items []ScheduledItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := item.validate(); err != nil {
			return err
		}
		if _, ok := seen[item.ID]; ok {
			return errors.NewBadRequestErr(fmt.Sprintf("duplicate item id %s", item.ID), nil,
				errors.Details{"item": item.ID})
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
