package integration

import (
	"sort"
	"time"
)

// FieldDiff is the result of reconciling an incoming field set against the
// current state of the target side.
type FieldDiff struct {
	// Changes are the fields to write on the target
	Changes FieldSet
	// Conflicts lists fields both sides changed since the baseline
	Conflicts []string
}

// IsEmpty returns true if nothing has to be written
func (d FieldDiff) IsEmpty() bool {
	return len(d.Changes) == 0
}

// ChangedFields returns the names of the changed fields in sorted order
func (d FieldDiff) ChangedFields() []string {
	return d.Changes.Keys()
}

// Reconcile applies the field-level last-write-wins policy.
//
// For every incoming field whose value differs from the target:
//   - only the incoming side moved away from the baseline: take incoming
//   - only the target side moved away from the baseline: keep target
//   - both moved, or there is no baseline: the side with the later
//     modification time wins; ties and unknown times go to incoming
func Reconcile(incoming, current, baseline FieldSet, incomingAt, currentAt time.Time) FieldDiff {
	diff := FieldDiff{Changes: make(FieldSet)}
	incomingNewer := incomingAt.IsZero() || currentAt.IsZero() || !currentAt.After(incomingAt)

	for field, in := range incoming {
		cur := current[field]
		if in == cur {
			continue
		}
		base, hasBase := baseline[field]
		incomingMoved := !hasBase || in != base
		currentMoved := !hasBase || cur != base

		switch {
		case incomingMoved && !currentMoved:
			diff.Changes[field] = in
		case !incomingMoved && currentMoved:
			// target edit not yet propagated, the opposite pass pushes it
		default:
			diff.Conflicts = append(diff.Conflicts, field)
			if incomingNewer {
				diff.Changes[field] = in
			}
		}
	}
	sort.Strings(diff.Conflicts)
	return diff
}
