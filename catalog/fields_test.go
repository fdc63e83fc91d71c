package catalog

import "testing"

func TestDeriveSchedule(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ScheduleFields
	}{
		{
			name: "full schedule",
			raw:  "MON WED FRI 9:00-9:50 start: 2026/01/12",
			want: ScheduleFields{Days: "FRI MON WED", TimeSpan: "9:00-9:50", StartDate: "2026/01/12"},
		},
		{
			name: "lowercase days and spaced hyphen",
			raw:  "mon tue 10:00 - 11:15",
			want: ScheduleFields{Days: "MON TUE", TimeSpan: "10:00 - 11:15"},
		},
		{
			name: "duplicate day tokens collapse",
			raw:  "MON MON WED 9:00-9:50",
			want: ScheduleFields{Days: "MON WED", TimeSpan: "9:00-9:50"},
		},
		{
			name: "start marker with colon and spaces",
			raw:  "TBA Start:  01/12/2026",
			want: ScheduleFields{StartDate: "01/12/2026"},
		},
		{
			name: "no recognizable structure",
			raw:  "Arranged with instructor",
			want: ScheduleFields{},
		},
		{
			name: "empty",
			raw:  "",
			want: ScheduleFields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSchedule(tt.raw)
			if got != tt.want {
				t.Errorf("DeriveSchedule(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeCourseCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "ARTS 101", expected: "ARTS 101"},
		{input: "  arts   101  ", expected: "ARTS 101"},
		{input: "COMP\t4301", expected: "COMP 4301"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCourseCode(tt.input); got != tt.expected {
				t.Errorf("NormalizeCourseCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFallbackKey(t *testing.T) {
	a := FallbackKey("ARTS 101", "E-025", "MON 9:00-9:50", "Dr. Khan")
	b := FallbackKey("ARTS 101", "E-026", "MON 9:00-9:50", "Dr. Khan")
	if a == b {
		t.Errorf("keys should differ when classroom differs: %q", a)
	}

	c := FallbackKey(" arts  101 ", " E-025 ", "MON 9:00-9:50", " Dr. Khan ")
	if a != c {
		t.Errorf("key should be stable under whitespace noise: %q vs %q", a, c)
	}
}
