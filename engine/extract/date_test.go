package extract

import (
	"testing"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

var dateNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeDateFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2026-03-15", "2026-03-15"},
		{"2026-3-5", "2026-03-05"},
		{"3/15/2026", "2026-03-15"},
		{"03/15/26", "2026-03-15"},
		{"15.03.2026", "2026-03-15"},
		{"15.03.26", "2026-03-15"},
		{"3-15-2026", "2026-03-15"},
		{"2026/03/15", "2026-03-15"},
		{"March 15, 2026", "2026-03-15"},
		{"Mar. 15 2026", "2026-03-15"},
		{"December 1, 2025", "2025-12-01"},
	}
	for _, tt := range tests {
		fv := NormalizeDate("expiration_date", tt.raw, dateNow)
		if fv.FinalValue != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.raw, fv.FinalValue, tt.want)
		}
		if fv.Confidence != 95 {
			t.Errorf("NormalizeDate(%q) confidence = %d, want 95", tt.raw, fv.Confidence)
		}
	}
}

func TestNormalizeDateOCRSlashConfusion(t *testing.T) {
	fv := NormalizeDate("expiration_date", "O3/15/2026", dateNow)
	if fv.FinalValue != "2026-03-15" {
		t.Fatalf("FinalValue = %q", fv.FinalValue)
	}
	if fv.Confidence != 85 {
		t.Errorf("Confidence = %d, want 95 minus the OCR penalty", fv.Confidence)
	}
	if len(fv.Corrections) < 2 {
		t.Errorf("Corrections = %v, want normalization and OCR entries", fv.Corrections)
	}
}

func TestNormalizeDateFuzzyFallback(t *testing.T) {
	fv := NormalizeDate("expiration_date", "03 15 2024", dateNow)
	if fv.FinalValue != "2024-03-15" {
		t.Fatalf("FinalValue = %q", fv.FinalValue)
	}
	if fv.Confidence != 60 {
		t.Errorf("Confidence = %d, want 60", fv.Confidence)
	}
	if fv.Status != domain.FieldAcceptable {
		t.Errorf("Status = %q", fv.Status)
	}
}

func TestNormalizeDateFuzzyYearFirst(t *testing.T) {
	fv := NormalizeDate("issue_date", "2024 03 15", dateNow)
	if fv.FinalValue != "2024-03-15" {
		t.Errorf("FinalValue = %q", fv.FinalValue)
	}
}

func TestNormalizeDateOutOfBandYear(t *testing.T) {
	fv := NormalizeDate("expiration_date", "1995-06-01", dateNow)
	if fv.FinalValue != "1995-06-01" {
		t.Fatalf("FinalValue = %q", fv.FinalValue)
	}
	if fv.Confidence != 70 {
		t.Errorf("Confidence = %d, want 95 minus the out-of-band penalty", fv.Confidence)
	}
	if len(fv.Notes) == 0 {
		t.Error("expected a note about the year")
	}
}

func TestNormalizeDateTwoDigitYearPivot(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"01/15/30", "2030-01-15"},
		{"01/15/31", "1931-01-15"},
	}
	for _, tt := range tests {
		fv := NormalizeDate("expiration_date", tt.raw, dateNow)
		if fv.FinalValue != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.raw, fv.FinalValue, tt.want)
		}
	}
}

func TestNormalizeDateUnparseable(t *testing.T) {
	fv := NormalizeDate("expiration_date", "sometime next year", dateNow)
	if fv.FinalValue != "sometime next year" {
		t.Errorf("FinalValue = %q, want original retained", fv.FinalValue)
	}
	if fv.Confidence != 10 {
		t.Errorf("Confidence = %d, want 10", fv.Confidence)
	}
	if fv.Status != domain.FieldQuestionable {
		t.Errorf("Status = %q", fv.Status)
	}
}

func TestNormalizeDateEmpty(t *testing.T) {
	fv := NormalizeDate("expiration_date", "  ", dateNow)
	if fv.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0", fv.Confidence)
	}
}

func TestNormalizeDateRejectsImpossibleCalendarDates(t *testing.T) {
	for _, raw := range []string{"2026-02-30", "13/45/2026"} {
		fv := NormalizeDate("expiration_date", raw, dateNow)
		if fv.Confidence > 15 {
			t.Errorf("NormalizeDate(%q) confidence = %d, want failure", raw, fv.Confidence)
		}
	}
}

func TestNormalizeDateIdempotentOnISO(t *testing.T) {
	first := NormalizeDate("expiration_date", "7/4/2026", dateNow)
	second := NormalizeDate("expiration_date", first.FinalValue, dateNow)
	if second.FinalValue != first.FinalValue {
		t.Errorf("re-normalizing %q gave %q", first.FinalValue, second.FinalValue)
	}
	if len(second.Corrections) != 0 {
		t.Errorf("unexpected corrections on clean ISO input: %v", second.Corrections)
	}
}
