package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// monthNames maps month names and abbreviations (lowercased) to month numbers.
var monthNames = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may":  5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

// dateFormat is one explicit pattern tried in order before fuzzy parsing.
type dateFormat struct {
	name    string
	re      *regexp.Regexp
	// order maps capture groups (1,2,3) to (year, month, day).
	extract func(g []string) (year, month, day int, ok bool)
}

var (
	isoRe        = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usSlashRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	usSlashYYRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
	euroDotRe    = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	euroDotYYRe  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2})$`)
	usDashRe     = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	revISORe     = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	longFormRe   = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	ocrSlashRe   = regexp.MustCompile(`^[0-9Oo]{1,2}/[0-9Oo]{1,2}/[0-9Oo]{2,4}$`)
	numericRunRe = regexp.MustCompile(`\d+`)
)

// expandYear applies the two-digit year pivot: yy <= 30 lands in the 2000s.
func expandYear(yy int) int {
	if yy <= 30 {
		return 2000 + yy
	}
	return 1900 + yy
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var explicitFormats = []dateFormat{
	{"iso", isoRe, func(g []string) (int, int, int, bool) {
		return atoi(g[1]), atoi(g[2]), atoi(g[3]), true
	}},
	{"us-slash", usSlashRe, func(g []string) (int, int, int, bool) {
		return atoi(g[3]), atoi(g[1]), atoi(g[2]), true
	}},
	{"us-slash-yy", usSlashYYRe, func(g []string) (int, int, int, bool) {
		return expandYear(atoi(g[3])), atoi(g[1]), atoi(g[2]), true
	}},
	{"euro-dot", euroDotRe, func(g []string) (int, int, int, bool) {
		return atoi(g[3]), atoi(g[2]), atoi(g[1]), true
	}},
	{"euro-dot-yy", euroDotYYRe, func(g []string) (int, int, int, bool) {
		return expandYear(atoi(g[3])), atoi(g[2]), atoi(g[1]), true
	}},
	{"us-dash", usDashRe, func(g []string) (int, int, int, bool) {
		return atoi(g[3]), atoi(g[1]), atoi(g[2]), true
	}},
	{"reverse-iso-slash", revISORe, func(g []string) (int, int, int, bool) {
		return atoi(g[1]), atoi(g[2]), atoi(g[3]), true
	}},
	{"long-form", longFormRe, func(g []string) (int, int, int, bool) {
		m, ok := monthNames[strings.ToLower(g[1])]
		if !ok {
			return 0, 0, 0, false
		}
		return atoi(g[3]), m, atoi(g[2]), true
	}},
}

// calendarValid reports whether y/m/d is a real calendar date with a sane
// year. time.Date normalises overflow, so a round trip detects bad days.
func calendarValid(y, m, d int) bool {
	if y < 1900 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}

// parseExplicit tries every explicit format in order. The OCR-damaged slash
// pattern (0/O confusion) is handled by pre-correcting and re-running the
// slash formats.
func parseExplicit(s string) (y, m, d int, format string, corrected bool) {
	for _, f := range explicitFormats {
		g := f.re.FindStringSubmatch(s)
		if g == nil {
			continue
		}
		yy, mm, dd, ok := f.extract(g)
		if ok && calendarValid(yy, mm, dd) {
			return yy, mm, dd, f.name, false
		}
	}
	if ocrSlashRe.MatchString(s) && strings.ContainsAny(s, "Oo") {
		fixed := strings.NewReplacer("O", "0", "o", "0").Replace(s)
		if y, m, d, format, _ := parseExplicit(fixed); format != "" {
			return y, m, d, format + "+ocr", true
		}
	}
	return 0, 0, 0, "", false
}

// parseFuzzy extracts all numeric runs; with exactly three it tries the
// plausible (year, month, day) orderings and accepts the first calendar-valid
// result: year-first, year-last, and year-last with a two-digit year.
func parseFuzzy(s string) (y, m, d int, ok bool) {
	runs := numericRunRe.FindAllString(s, -1)
	if len(runs) != 3 {
		return 0, 0, 0, false
	}
	a, b, c := atoi(runs[0]), atoi(runs[1]), atoi(runs[2])

	orderings := [][3]int{
		{a, b, c},             // YMD
		{c, a, b},             // MDY (year last)
		{expandYear(c), a, b}, // MDY with two-digit year expanded
	}
	for _, o := range orderings {
		if calendarValid(o[0], o[1], o[2]) {
			return o[0], o[1], o[2], true
		}
	}
	return 0, 0, 0, false
}

// reasonableYear is the tighter plausibility band rewarded by confidence
// scoring: 2000 through five years from now.
func reasonableYear(year int, now time.Time) bool {
	return year >= 2000 && year <= now.Year()+5
}

// NormalizeDate corrects and scores a raw date extraction. On success the
// final value is always YYYY-MM-DD; on total failure the original string is
// retained with confidence <= 15 and a descriptive note.
func NormalizeDate(field, raw string, now time.Time) domain.FieldValidation {
	fv := domain.FieldValidation{
		Field:         field,
		OriginalValue: raw,
		FinalValue:    raw,
		Status:        domain.FieldQuestionable,
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		fv.Confidence = 0
		fv.Notes = append(fv.Notes, "empty date value")
		return fv
	}

	y, m, d, format, corrected := parseExplicit(trimmed)
	fuzzy := false
	if format == "" {
		var ok bool
		y, m, d, ok = parseFuzzy(trimmed)
		if !ok {
			fv.Confidence = 10
			fv.Notes = append(fv.Notes, fmt.Sprintf("unrecognized date format %q", raw))
			return fv
		}
		fuzzy = true
	}

	normalized := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	fv.FinalValue = normalized
	if normalized != trimmed {
		fv.Corrections = append(fv.Corrections, fmt.Sprintf("normalized %q to %s", raw, normalized))
	}
	if corrected {
		fv.Corrections = append(fv.Corrections, "corrected 0/O confusion in date digits")
	}

	confidence := 95
	if fuzzy {
		confidence = 60
		fv.Notes = append(fv.Notes, "parsed via fuzzy three-number fallback")
	}
	if corrected {
		confidence -= 10
	}
	if !reasonableYear(y, now) {
		confidence -= 25
		fv.Notes = append(fv.Notes, fmt.Sprintf("year %d outside expected range", y))
	}
	if confidence < 10 {
		confidence = 10
	}
	fv.Confidence = confidence

	switch {
	case confidence >= 90:
		fv.Status = domain.FieldExcellent
	case confidence >= 75:
		fv.Status = domain.FieldGood
	case confidence >= 55:
		fv.Status = domain.FieldAcceptable
	default:
		fv.Status = domain.FieldQuestionable
	}
	return fv
}
