// Package models defines data structures shared by the catalog watcher.
package models

import "time"

// SectionRecord represents one scheduled offering of a course.
type SectionRecord struct {
	UniqueKey   string `json:"unique"`
	CourseCode  string `json:"course_code"`
	SectionID   string `json:"section"`
	CourseName  string `json:"course_name"`
	Credits     string `json:"credits"`
	Classroom   string `json:"classroom"`
	ScheduleRaw string `json:"schedule_raw"`
	Days        string `json:"days"`
	TimeSpan    string `json:"time"`
	StartDate   string `json:"start_date"`
	Instructor  string `json:"instructor"`
	Capacity    string `json:"capacity"`
	Available   string `json:"available"`
	HasError    bool   `json:"has_error,omitempty"`
}

// Snapshot is the full set of section records captured in one fetch,
// tagged with the term it was fetched for.
type Snapshot struct {
	TermCode string           `json:"term_code"`
	TermName string           `json:"term_name"`
	Courses  []*SectionRecord `json:"courses"`
}

// ByKey indexes the snapshot's records by unique key. Row order is not
// stable between fetches, so the key is the only valid join identity.
func (s *Snapshot) ByKey() map[string]*SectionRecord {
	if s == nil {
		return map[string]*SectionRecord{}
	}
	out := make(map[string]*SectionRecord, len(s.Courses))
	for _, rec := range s.Courses {
		if rec != nil && rec.UniqueKey != "" {
			out[rec.UniqueKey] = rec
		}
	}
	return out
}

// Len reports how many records the snapshot holds. Safe on nil.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Courses)
}

// EventType labels a reportable catalog change.
type EventType string

// Reportable change kinds surfaced in the feed.
const (
	EventNewSection         EventType = "NEW_SECTION"
	EventSeatsAvailable     EventType = "SEATS_AVAILABLE"
	EventInstructorChange   EventType = "INSTRUCTOR_CHANGE"
	EventInstructorAssigned EventType = "INSTRUCTOR_ASSIGNED"
	EventScheduleChange     EventType = "SCHEDULE_CHANGE"
)

// ChangeEvent is one reportable difference between two snapshots.
// Events are immutable once created.
type ChangeEvent struct {
	Type       EventType `json:"type"`
	CourseCode string    `json:"course_code"`
	SectionID  string    `json:"section"`
	CourseName string    `json:"course_name"`
	Details    string    `json:"details"`
	Timestamp  time.Time `json:"timestamp"`
}

// TermRef points at the most recently observed term.
type TermRef struct {
	TermCode string `json:"term_code"`
	TermName string `json:"term_name"`
}

// RunResult summarizes one watcher run for logging.
type RunResult struct {
	TermCode     string
	TermName     string
	StartTime    time.Time
	EndTime      time.Time
	SectionCount int
	SkippedRows  int
	EventCount   int
	EventsByType map[EventType]int
	Instructors  int
	FirstRun     bool
}
