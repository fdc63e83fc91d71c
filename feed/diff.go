// Package feed diffs catalog snapshots into a bounded change-event feed.
//
// Only semantically meaningful transitions are reportable; raw field
// differences that students don't act on stay out of the feed. The engine is
// total over any two well-formed snapshots, including nil ones.
package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Appile1/FCCU-Advisior/models"
)

// placeholderNames are catalog strings that stand in for "no instructor
// assigned yet". Comparing them as empty means TBD -> "Dr. Khan" reports an
// assignment, not a change between two names.
var placeholderNames = map[string]struct{}{
	"TBD":   {},
	"TBA":   {},
	"STAFF": {},
}

// IsPlaceholderInstructor reports whether an instructor cell holds a
// scheduling placeholder rather than a real name.
func IsPlaceholderInstructor(name string) bool {
	_, ok := placeholderNames[strings.ToUpper(strings.TrimSpace(name))]
	return ok
}

func effectiveInstructor(name string) string {
	name = strings.TrimSpace(name)
	if IsPlaceholderInstructor(name) {
		return ""
	}
	return name
}

// ParseSeats coerces a seat-count cell to an integer. Non-numeric text
// ("Closed", "Full", empty) coerces to 0; the raw text stays on the record.
func ParseSeats(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

// Diff compares the previous and current snapshots and returns the
// reportable events for this run, in current-snapshot order.
//
// An empty previous snapshot means this is the first run for the term:
// absence of history is not a change, so no events are emitted. Keys present
// only in the previous snapshot (cancelled or delisted sections) emit
// nothing; consumers depend on that silence.
func Diff(previous, current *models.Snapshot, now time.Time) []models.ChangeEvent {
	if previous.Len() == 0 || current.Len() == 0 {
		return nil
	}

	prevByKey := previous.ByKey()

	var events []models.ChangeEvent
	add := func(rec *models.SectionRecord, kind models.EventType, details string) {
		events = append(events, models.ChangeEvent{
			Type:       kind,
			CourseCode: rec.CourseCode,
			SectionID:  rec.SectionID,
			CourseName: rec.CourseName,
			Details:    details,
			Timestamp:  now,
		})
	}

	for _, curr := range current.Courses {
		prev, known := prevByKey[curr.UniqueKey]
		if !known {
			// A brand-new section cannot also have changed relative
			// to nothing.
			add(curr, models.EventNewSection, "New section added")
			continue
		}

		currSeats := ParseSeats(curr.Available)
		prevSeats := ParseSeats(prev.Available)
		if prevSeats <= 0 && currSeats > 0 {
			add(curr, models.EventSeatsAvailable,
				fmt.Sprintf("%d seat(s) now available", currSeats))
		}

		currInst := effectiveInstructor(curr.Instructor)
		prevInst := effectiveInstructor(prev.Instructor)
		if currInst != prevInst {
			switch {
			case currInst != "" && prevInst != "":
				add(curr, models.EventInstructorChange,
					fmt.Sprintf("Instructor changed: %s → %s", prevInst, currInst))
			case currInst != "":
				add(curr, models.EventInstructorAssigned,
					fmt.Sprintf("Instructor assigned: %s", currInst))
			}
		}

		currSched := strings.TrimSpace(curr.ScheduleRaw)
		prevSched := strings.TrimSpace(prev.ScheduleRaw)
		if currSched != prevSched {
			add(curr, models.EventScheduleChange,
				fmt.Sprintf("Schedule changed: %s → %s", prevSched, currSched))
		}
	}

	return events
}

// Merge prepends this run's events to the persisted feed and trims to the
// configured cap. Events beyond the cap are dropped for good; the feed has
// no archival tier.
func Merge(existing, fresh []models.ChangeEvent, max int) []models.ChangeEvent {
	merged := make([]models.ChangeEvent, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

// CountByType tallies events per kind for run summaries.
func CountByType(events []models.ChangeEvent) map[models.EventType]int {
	counts := make(map[models.EventType]int, len(events))
	for _, ev := range events {
		counts[ev.Type]++
	}
	return counts
}
