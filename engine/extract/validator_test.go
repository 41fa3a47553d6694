package extract

import (
	"testing"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

func testValidator() *Validator {
	return &Validator{now: func() time.Time { return dateNow }}
}

func rawWith(data map[string]any, conf float64) *domain.RawExtraction {
	return &domain.RawExtraction{
		DocumentType:  "insurance",
		FileName:      "policy.pdf",
		Confidence:    &conf,
		ExtractedData: data,
	}
}

func TestValidateCleanDocumentAutoApproves(t *testing.T) {
	v := testValidator()
	report := v.Validate(rawWith(map[string]any{
		"vin":             "1HGBH41JXMN109186",
		"expiration_date": "2027-03-15",
		"make":            "Freightliner",
	}, 95))

	if report.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", report.Status, StatusSuccess)
	}
	if report.Recommendation != RecommendAutoApprove {
		t.Errorf("Recommendation = %q", report.Recommendation)
	}
	if report.CleanVIN != "1HGBH41JXMN109186" {
		t.Errorf("CleanVIN = %q", report.CleanVIN)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("Warnings = %v", report.Warnings)
	}
	if report.Confidence < 80 {
		t.Errorf("Confidence = %d, want >= 80", report.Confidence)
	}
}

func TestValidateDirtyDateDowngradesToWarnings(t *testing.T) {
	v := testValidator()
	report := v.Validate(rawWith(map[string]any{
		"vin":             "1HGBH41JXMN109186",
		"expiration_date": "2027-03-15",
		"issue_date":      "scribbled out",
	}, 95))

	if report.Status != StatusSuccessWithWarnings {
		t.Errorf("Status = %q, want %q", report.Status, StatusSuccessWithWarnings)
	}
	if report.Recommendation != RecommendReview {
		t.Errorf("Recommendation = %q", report.Recommendation)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a warning for the unreadable date")
	}
	if len(report.Suggestions) == 0 {
		t.Error("expected a follow-up suggestion")
	}
}

func TestValidateNilExtraction(t *testing.T) {
	v := testValidator()
	report := v.Validate(nil)
	if report.Status != StatusNeedsReview || report.Recommendation != RecommendManualReview {
		t.Errorf("report = %q/%q", report.Status, report.Recommendation)
	}
}

func TestValidateEmptyExtraction(t *testing.T) {
	v := testValidator()
	report := v.Validate(&domain.RawExtraction{FileName: "blank.pdf"})
	if report.Status != StatusNeedsReview {
		t.Errorf("Status = %q", report.Status)
	}
	if report.Confidence != 0 {
		t.Errorf("Confidence = %d", report.Confidence)
	}
}

func TestValidateFindsVINInFreeText(t *testing.T) {
	v := testValidator()
	conf := 90.0
	report := v.Validate(&domain.RawExtraction{
		FileName:      "policy.pdf",
		Confidence:    &conf,
		ExtractedData: map[string]any{"policy_number": "POL-7781"},
		Text:          "This certifies coverage for vehicle 1HGBH41JXMN109186 until further notice.",
	})
	if report.CleanVIN != "1HGBH41JXMN109186" {
		t.Errorf("CleanVIN = %q", report.CleanVIN)
	}
}

func TestValidateFieldMapUsesCorrectedValues(t *testing.T) {
	v := testValidator()
	report := v.Validate(rawWith(map[string]any{
		"vin":             "1HGBH41JXMN1O9I86",
		"expiration_date": "3/15/2027",
	}, 95))

	if report.FieldMap["vin"] != "1HGBH41JXMN109186" {
		t.Errorf("vin = %q", report.FieldMap["vin"])
	}
	if report.FieldMap["expiration_date"] != "2027-03-15" {
		t.Errorf("expiration_date = %q", report.FieldMap["expiration_date"])
	}
}

func TestValidateCorrectionsTriggerReviewSuggestion(t *testing.T) {
	v := testValidator()
	report := v.Validate(rawWith(map[string]any{
		"vin": "1HGBH41JXMN1O9I86",
	}, 95))

	found := false
	for _, s := range report.Suggestions {
		if s == "review automated corrections before approval" {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggestions = %v, want correction-review entry", report.Suggestions)
	}
}
