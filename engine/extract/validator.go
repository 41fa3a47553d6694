package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// Overall validation statuses and processing recommendations.
const (
	StatusSuccess             = "success"
	StatusSuccessWithWarnings = "success_with_warnings"
	StatusNeedsReview         = "needs_review"

	RecommendAutoApprove  = "auto_approve"
	RecommendReview       = "review_recommended"
	RecommendManualReview = "manual_review_required"
)

// Report is the overall assessment of one document's extraction.
type Report struct {
	Fields         []domain.FieldValidation `json:"fields"`
	VINCandidates  []domain.FieldValidation `json:"vin_candidates,omitempty"`
	CleanVIN       string                   `json:"clean_vin,omitempty"`
	FieldMap       map[string]string        `json:"field_map"`
	Confidence     int                      `json:"confidence_score"`
	Status         string                   `json:"status"`
	Recommendation string                   `json:"processing_recommendation"`
	Warnings       []string                 `json:"warnings,omitempty"`
	Suggestions    []string                 `json:"suggestions,omitempty"`
}

// Validator scores raw extractions. The clock is injectable for tests.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

func isVINField(name string) bool {
	return strings.Contains(name, "vin")
}

func isDateField(name string) bool {
	for _, marker := range []string{"date", "expir", "issued", "valid_from", "valid_until"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func scoreGeneric(field, value string, base int) domain.FieldValidation {
	conf := base
	if conf < 0 {
		conf = 75
	}
	fv := domain.FieldValidation{
		Field:         field,
		OriginalValue: value,
		FinalValue:    strings.TrimSpace(value),
		Confidence:    conf,
	}
	switch {
	case conf >= 90:
		fv.Status = domain.FieldExcellent
	case conf >= 75:
		fv.Status = domain.FieldGood
	case conf >= 55:
		fv.Status = domain.FieldAcceptable
	default:
		fv.Status = domain.FieldQuestionable
	}
	return fv
}

// Validate assesses one raw extraction. It never fails: a document with no
// scorable content comes back as needs_review with an explanatory warning.
func (v *Validator) Validate(raw *domain.RawExtraction) Report {
	report := Report{FieldMap: make(map[string]string)}
	if raw == nil {
		report.Status = StatusNeedsReview
		report.Recommendation = RecommendManualReview
		report.Warnings = append(report.Warnings, "no extraction payload")
		return report
	}

	now := v.now()
	base := raw.BaseConfidence()
	fields := raw.Fields()

	corrected := false
	for _, key := range raw.SortedFieldKeys() {
		value := fields[key]
		var fv domain.FieldValidation
		switch {
		case isVINField(key):
			fv = ValidateVIN(key, value)
			report.VINCandidates = append(report.VINCandidates, fv)
		case isDateField(key):
			fv = NormalizeDate(key, value, now)
		default:
			fv = scoreGeneric(key, value, base)
		}
		report.Fields = append(report.Fields, fv)
		report.FieldMap[key] = fv.FinalValue
		if len(fv.Corrections) > 0 {
			corrected = true
		}
		for _, note := range fv.Notes {
			if fv.Status == domain.FieldQuestionable {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", key, note))
			}
		}
	}

	// Free-text VIN candidates: each validated independently and surfaced.
	if raw.Text != "" {
		for _, cand := range FindVINCandidates(raw.Text) {
			if duplicateCandidate(report.VINCandidates, cand) {
				continue
			}
			fv := ValidateVIN("text.vin_candidate", cand)
			report.VINCandidates = append(report.VINCandidates, fv)
		}
	}
	report.CleanVIN = PickVIN(report.VINCandidates)

	if len(report.Fields) == 0 && report.CleanVIN == "" {
		report.Status = StatusNeedsReview
		report.Recommendation = RecommendManualReview
		report.Confidence = 0
		report.Warnings = append(report.Warnings, "extraction contained no usable fields")
		return report
	}

	report.Confidence = meanConfidence(report.Fields, report.VINCandidates)

	switch {
	case report.Confidence >= 80 && len(report.Warnings) == 0:
		report.Status = StatusSuccess
		report.Recommendation = RecommendAutoApprove
	case report.Confidence >= 60 && len(report.Warnings) <= 2:
		report.Status = StatusSuccessWithWarnings
		report.Recommendation = RecommendReview
	default:
		report.Status = StatusNeedsReview
		report.Recommendation = RecommendManualReview
	}

	report.Suggestions = buildSuggestions(report.Fields, corrected)
	return report
}

func duplicateCandidate(existing []domain.FieldValidation, cand string) bool {
	for _, fv := range existing {
		if fv.FinalValue == cand {
			return true
		}
		if s, _ := stripVIN(fv.OriginalValue); s == cand {
			return true
		}
	}
	return false
}

func meanConfidence(fields, candidates []domain.FieldValidation) int {
	sum, n := 0, 0
	for _, fv := range fields {
		sum += fv.Confidence
		n++
	}
	if n == 0 {
		// Text-only VIN candidates still carry signal.
		for _, fv := range candidates {
			sum += fv.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}

// buildSuggestions generates (but never executes) follow-up actions.
func buildSuggestions(fields []domain.FieldValidation, corrected bool) []string {
	var out []string
	for _, fv := range fields {
		switch {
		case isVINField(fv.Field) && fv.Confidence < 70:
			out = append(out, fmt.Sprintf("verify VIN in %q against the vehicle title", fv.Field))
		case isDateField(fv.Field) && fv.Confidence < 60:
			out = append(out, fmt.Sprintf("confirm date field %q on the source document", fv.Field))
		case fv.Confidence < 60:
			out = append(out, fmt.Sprintf("manually re-verify field %q", fv.Field))
		}
	}
	if corrected {
		out = append(out, "review automated corrections before approval")
	}
	return out
}
