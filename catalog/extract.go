// Package catalog turns rendered catalog grid markup into section records.
//
// The grid is produced by a third party and drifts between two layouts: a
// flat layout where every row is a self-contained section, and a grouped
// layout where a course header row is followed by section rows carrying only
// the schedule-area columns. Rows are classified structurally and dispatched
// to a layout-specific extraction path; individual malformed rows are
// skipped, never fatal.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Appile1/FCCU-Advisior/models"
)

const (
	rowSelector   = "div.ui-grid-row"
	colSelector   = "div[class*='ui-grid-col-']"
	errorSelector = ".ui-state-error, img[src*='warning']"
)

// Positional column layout of a full grid row.
const (
	colStatus = iota
	colCourseInfo
	colCredits
	colClassroom
	colSchedule
	colInstructor
	colCapacity
	colAvailable

	fullColumns = 8
)

// Positional layout of a grouped continuation row, which carries only the
// schedule-area columns.
const (
	subColClassroom = iota
	subColSchedule
	subColInstructor
	subColCapacity
	subColAvailable

	scheduleColumns = 5
)

// RowShape tags the structural variant a grid row belongs to.
type RowShape int

const (
	RowMalformed RowShape = iota
	RowFlat
	RowCourseHeader
	RowSectionOnly
)

// Row is the shape-relevant view of one grid row, decoupled from the
// underlying markup so classification stays a pure function.
type Row struct {
	Cells           []string // collapsed text per positional cell
	CourseInfoLines []string // text lines of the course-info cell, if present
	Text            string   // whole-row text, uncollapsed
	HasError        bool     // row carries an error-indicator marker
}

// Classify determines which extraction path a row takes.
//
// A full-width row whose course-info cell splits into a code+section line and
// a name line is a flat section row. A full-width row containing either a
// non-breaking-space rendering artifact or a bare LETTERS+DIGITS cell is a
// course header opening a grouped run. A narrow row exposing only the
// schedule-area columns is a grouped continuation.
func Classify(r Row) RowShape {
	switch {
	case len(r.Cells) >= fullColumns:
		if len(r.CourseInfoLines) >= 2 && reCourseCode.MatchString(r.CourseInfoLines[0]) {
			return RowFlat
		}
		if strings.ContainsRune(r.Text, '\u00a0') {
			return RowCourseHeader
		}
		for _, cell := range r.Cells {
			if reHeaderCode.MatchString(strings.TrimSpace(cell)) {
				return RowCourseHeader
			}
		}
		return RowMalformed
	case len(r.Cells) >= scheduleColumns:
		return RowSectionOnly
	default:
		return RowMalformed
	}
}

// Result is the extractor output for one markup payload.
type Result struct {
	Records []*models.SectionRecord
	// Instructors is the distinct set of non-empty instructor names seen
	// across all parsed rows, sorted. Returned rather than accumulated in
	// shared state so independent callers can run concurrently.
	Instructors []string
	SkippedRows int
}

// Extract parses a markup fragment into an ordered sequence of section
// records. Rows failing their structural preconditions are skipped and
// counted; Extract only fails when the row container is absent entirely,
// which signals an incompatible upstream page change.
func Extract(rawMarkup string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	rows := doc.Find(rowSelector)
	if rows.Length() == 0 {
		return nil, StructureError{Selector: rowSelector}
	}

	ex := &extractor{
		seen:        make(map[string]struct{}),
		instructors: make(map[string]struct{}),
	}
	rows.Each(func(_ int, sel *goquery.Selection) {
		ex.row(buildRow(sel))
	})

	names := make([]string, 0, len(ex.instructors))
	for name := range ex.instructors {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Result{
		Records:     ex.records,
		Instructors: names,
		SkippedRows: ex.skipped,
	}, nil
}

func buildRow(sel *goquery.Selection) Row {
	var r Row
	sel.Find(colSelector).Each(func(i int, cell *goquery.Selection) {
		r.Cells = append(r.Cells, collapseText(cell.Text()))
		if i == colCourseInfo {
			r.CourseInfoLines = cellLines(cell)
		}
	})
	r.Text = sel.Text()
	r.HasError = sel.Find(errorSelector).Length() > 0
	return r
}

// cellLines splits a cell into its non-empty text lines. Multi-line cells
// render either as text nodes separated by <br> or as nested block elements;
// both leave line boundaries recoverable here.
func cellLines(sel *goquery.Selection) []string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		switch goquery.NodeName(node) {
		case "br", "div", "p":
			b.WriteString("\n")
			b.WriteString(node.Text())
		default:
			b.WriteString(node.Text())
		}
	})

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = collapseText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func collapseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type extractor struct {
	records     []*models.SectionRecord
	seen        map[string]struct{}
	instructors map[string]struct{}
	skipped     int

	// open course header while walking a grouped run
	curCode    string
	curName    string
	curCredits string
}

func (ex *extractor) row(r Row) {
	switch Classify(r) {
	case RowFlat:
		ex.flatRow(r)
	case RowCourseHeader:
		ex.headerRow(r)
	case RowSectionOnly:
		ex.sectionRow(r)
	default:
		ex.skipped++
	}
}

// flatRow handles the layout where every row is a complete section: the
// course-info cell holds a code+section line followed by a name line.
func (ex *extractor) flatRow(r Row) {
	if len(r.CourseInfoLines) < 2 {
		ex.skipped++
		return
	}

	tokens := strings.Fields(r.CourseInfoLines[0])
	if len(tokens) < 2 {
		ex.skipped++
		return
	}
	sectionID := tokens[len(tokens)-1]
	code := NormalizeCourseCode(strings.Join(tokens[:len(tokens)-1], " "))
	if !reHeaderCode.MatchString(code) {
		ex.skipped++
		return
	}

	name := r.CourseInfoLines[1]
	if name == "" {
		ex.skipped++
		return
	}

	scheduleRaw := strings.TrimSpace(r.Cells[colSchedule])
	derived := DeriveSchedule(scheduleRaw)

	ex.emit(&models.SectionRecord{
		UniqueKey:   code + "/" + sectionID,
		CourseCode:  code,
		SectionID:   sectionID,
		CourseName:  name,
		Credits:     strings.TrimSpace(r.Cells[colCredits]),
		Classroom:   strings.TrimSpace(r.Cells[colClassroom]),
		ScheduleRaw: scheduleRaw,
		Days:        derived.Days,
		TimeSpan:    derived.TimeSpan,
		StartDate:   derived.StartDate,
		Instructor:  strings.TrimSpace(r.Cells[colInstructor]),
		Capacity:    strings.TrimSpace(r.Cells[colCapacity]),
		Available:   strings.TrimSpace(r.Cells[colAvailable]),
		HasError:    r.HasError,
	})
}

// headerRow opens a grouped course run. Header rows carry the full column
// set, so the header's own schedule-area columns also yield a section.
func (ex *extractor) headerRow(r Row) {
	code := reCourseCode.FindString(r.Text)
	if code == "" {
		ex.skipped++
		ex.curCode = ""
		return
	}

	ex.curCode = NormalizeCourseCode(code)
	ex.curName = r.Cells[colCourseInfo]
	ex.curCredits = strings.TrimSpace(r.Cells[colCredits])

	ex.groupedSection(
		r.Cells[colClassroom],
		r.Cells[colSchedule],
		r.Cells[colInstructor],
		r.Cells[colCapacity],
		r.Cells[colAvailable],
		r.HasError,
	)
}

// sectionRow handles a grouped continuation row. A continuation with no open
// course header has nothing to attach to and is skipped.
func (ex *extractor) sectionRow(r Row) {
	if ex.curCode == "" {
		ex.skipped++
		return
	}
	ex.groupedSection(
		r.Cells[subColClassroom],
		r.Cells[subColSchedule],
		r.Cells[subColInstructor],
		r.Cells[subColCapacity],
		r.Cells[subColAvailable],
		r.HasError,
	)
}

func (ex *extractor) groupedSection(classroom, schedule, instructor, capacity, available string, hasError bool) {
	scheduleRaw := strings.TrimSpace(schedule)
	derived := DeriveSchedule(scheduleRaw)
	instructor = strings.TrimSpace(instructor)

	ex.emit(&models.SectionRecord{
		UniqueKey:   FallbackKey(ex.curCode, classroom, scheduleRaw, instructor),
		CourseCode:  ex.curCode,
		CourseName:  ex.curName,
		Credits:     ex.curCredits,
		Classroom:   strings.TrimSpace(classroom),
		ScheduleRaw: scheduleRaw,
		Days:        derived.Days,
		TimeSpan:    derived.TimeSpan,
		StartDate:   derived.StartDate,
		Instructor:  instructor,
		Capacity:    strings.TrimSpace(capacity),
		Available:   strings.TrimSpace(available),
		HasError:    hasError,
	})
}

// emit appends a record unless its key collides with one already seen.
// Collisions are a parse defect, not a valid catalog state, so the later row
// is dropped and counted as skipped.
func (ex *extractor) emit(rec *models.SectionRecord) {
	if _, dup := ex.seen[rec.UniqueKey]; dup {
		ex.skipped++
		return
	}
	ex.seen[rec.UniqueKey] = struct{}{}
	ex.records = append(ex.records, rec)

	if rec.Instructor != "" {
		ex.instructors[rec.Instructor] = struct{}{}
	}
}
