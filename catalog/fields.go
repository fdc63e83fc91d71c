package catalog

import (
	"regexp"
	"sort"
	"strings"
)

var (
	reCourseCode = regexp.MustCompile(`([A-Z]{2,}\s*\d{3,}[A-Z]?)`)
	reHeaderCode = regexp.MustCompile(`^[A-Z]{2,}\s*\d{3,}[A-Z]?$`)
	reTimeSpan   = regexp.MustCompile(`(\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2})`)
	reDayToken   = regexp.MustCompile(`(?i)\b(MON|TUE|WED|THU|FRI|SAT|SUN)\b`)
	reStartDate  = regexp.MustCompile(`(?i)start[:\s]*([\d/]{8,10})`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeCourseCode collapses whitespace and uppercases a course code
// token, e.g. "arts   101" -> "ARTS 101".
func NormalizeCourseCode(code string) string {
	code = strings.TrimSpace(code)
	code = reSpaces.ReplaceAllString(code, " ")
	return strings.ToUpper(code)
}

// ScheduleFields are the structured values derivable from free-form
// schedule text. Any field the text does not contain stays empty; absence of
// structure in third-party text is not an error.
type ScheduleFields struct {
	Days      string
	TimeSpan  string
	StartDate string
}

// DeriveSchedule extracts days, time span and start date from raw schedule
// text using tolerant pattern matching. The raw text itself is always
// preserved verbatim on the record; these are display conveniences.
func DeriveSchedule(raw string) ScheduleFields {
	var f ScheduleFields

	if matches := reDayToken.FindAllString(raw, -1); len(matches) > 0 {
		seen := make(map[string]struct{}, len(matches))
		days := make([]string, 0, len(matches))
		for _, m := range matches {
			day := strings.ToUpper(m)
			if _, ok := seen[day]; ok {
				continue
			}
			seen[day] = struct{}{}
			days = append(days, day)
		}
		sort.Strings(days)
		f.Days = strings.Join(days, " ")
	}

	if m := reTimeSpan.FindStringSubmatch(raw); m != nil {
		f.TimeSpan = strings.TrimSpace(m[1])
	}

	if m := reStartDate.FindStringSubmatch(raw); m != nil {
		f.StartDate = m[1]
	}

	return f
}

// FallbackKey synthesizes a section identity for grouped layouts, where no
// explicit section label exists. The course code alone is not unique (one
// course owns several sections), so the room/schedule/instructor tuple
// disambiguates.
func FallbackKey(courseCode, classroom, scheduleRaw, instructor string) string {
	parts := []string{
		NormalizeCourseCode(courseCode),
		strings.TrimSpace(classroom),
		strings.TrimSpace(scheduleRaw),
		strings.TrimSpace(instructor),
	}
	return strings.Join(parts, "|")
}
