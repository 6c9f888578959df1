package agenda

import "github.com/lefinal/confcomp-server/errors"

// ConflictKind classifies a TimeConflict.
type ConflictKind string

const (
	// ConflictOverlap is used for items that partially overlap.
	ConflictOverlap ConflictKind = "overlap"
	// ConflictContained is used when one item fully encloses the other.
	ConflictContained ConflictKind = "contained"
)

// TimeConflict is a temporal overlap between two items. It is derived from
// the current item list and never persisted.
type TimeConflict struct {
	// First is the id of the item that comes first in input order.
	First string
	// Second is the id of the item that comes second in input order.
	Second string
	// Kind classifies the conflict.
	Kind ConflictKind
	// Container is the id of the enclosing item if Kind is ConflictContained.
	Container string
}

// DetectConflicts computes all pairwise conflicts for the given items. Pairs
// are checked in input order (i < j), so the result is deterministic for the
// same input. If both items enclose each other, which only happens for
// identical intervals, the first one in input order is reported as container.
//
// Items must pass validation (positive duration, unique ids). Otherwise, an
// errors.ErrBadRequest error is returned.
func DetectConflicts(items []ScheduledItem) ([]TimeConflict, error) {
	if err := validateItems(items); err != nil {
		return nil, errors.Wrap(err, "validate items", nil)
	}
	return detectConflicts(items), nil
}

// detectConflicts is DetectConflicts without validation.
func detectConflicts(items []ScheduledItem) []TimeConflict {
	conflicts := make([]TimeConflict, 0)
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if conflict, ok := classify(items[i], items[j]); ok {
				conflicts = append(conflicts, conflict)
			}
		}
	}
	return conflicts
}

// classify checks whether the two items conflict and classifies the conflict.
func classify(first ScheduledItem, second ScheduledItem) (TimeConflict, bool) {
	if !first.overlaps(second) {
		return TimeConflict{}, false
	}
	conflict := TimeConflict{
		First:  first.ID,
		Second: second.ID,
		Kind:   ConflictOverlap,
	}
	switch {
	case first.contains(second):
		conflict.Kind = ConflictContained
		conflict.Container = first.ID
	case second.contains(first):
		conflict.Kind = ConflictContained
		conflict.Container = second.ID
	}
	return conflict, true
}
