// Package extract implements the extraction validator: it turns one
// document's raw, possibly OCR-corrupted field extraction into corrected,
// confidence-scored values. Nothing in this package returns an error for bad
// input; the worst outcome is a low-confidence result with explanatory notes.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// ocrConfusions substitutes characters the VIN alphabet forbids with the
// digit an OCR pass most likely misread them from. Applied only to illegal
// characters, never blindly to every occurrence.
var ocrConfusions = map[rune]rune{
	'I': '1',
	'O': '0',
	'Q': '0',
}

// vinWeights is the per-position weight vector of the standard VIN
// check-digit scheme. Position 9 (index 8) is the check digit itself.
var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// vinValues transliterates VIN characters to check-digit values. I, O and Q
// are absent: they are illegal in a VIN.
var vinValues = map[rune]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
}

// wellFormedVINRe matches a 17-character VIN in the legal alphabet.
var wellFormedVINRe = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// vinCandidateRe finds VIN-like runs in free text. The run may still contain
// I/O/Q; those are handled by the correction pass.
var vinCandidateRe = regexp.MustCompile(`[A-Z0-9]{15,19}`)

// CheckDigit computes the expected position-9 check character for a
// 17-character VIN candidate. A remainder of 10 maps to 'X'.
func CheckDigit(vin string) (rune, bool) {
	if len(vin) != 17 {
		return 0, false
	}
	sum := 0
	for i, r := range vin {
		v, ok := vinValues[r]
		if !ok {
			return 0, false
		}
		sum += v * vinWeights[i]
	}
	rem := sum % 11
	if rem == 10 {
		return 'X', true
	}
	return rune('0' + rem), true
}

// HasValidCheckDigit reports whether the VIN's ninth character matches the
// computed check digit.
func HasValidCheckDigit(vin string) bool {
	want, ok := CheckDigit(vin)
	if !ok {
		return false
	}
	return rune(vin[8]) == want
}

// IsWellFormedVIN reports whether s is a 17-character VIN in the legal
// alphabet. The check digit is not required to match.
func IsWellFormedVIN(s string) bool {
	return wellFormedVINRe.MatchString(s)
}

// stripVIN uppercases and removes everything outside [A-Z0-9].
func stripVIN(raw string) (string, int) {
	upper := strings.ToUpper(raw)
	var b strings.Builder
	removed := 0
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			removed++
		}
	}
	return b.String(), removed
}

// correctIllegalVINChars applies the OCR confusion table to characters that
// are illegal in a VIN. Legal characters are never touched.
func correctIllegalVINChars(vin string) (string, []string) {
	var corrections []string
	out := []rune(vin)
	for i, r := range out {
		if sub, ok := ocrConfusions[r]; ok {
			out[i] = sub
			corrections = append(corrections, fmt.Sprintf("position %d: %c -> %c (illegal VIN character)", i+1, r, sub))
		}
	}
	return string(out), corrections
}

// ValidateVIN corrects and scores a raw VIN extraction. It never rejects:
// hopeless input comes back with questionable status and low confidence.
//
// Confidence is a weighted sum of correct length (+40), absence of illegal
// characters (+35), and correct character-class format (+25), capped at 100.
// A failed check digit downgrades status to questionable without zeroing
// the confidence.
func ValidateVIN(field, raw string) domain.FieldValidation {
	fv := domain.FieldValidation{
		Field:         field,
		OriginalValue: raw,
		Status:        domain.FieldQuestionable,
	}

	stripped, removed := stripVIN(raw)
	if removed > 0 {
		fv.Corrections = append(fv.Corrections, fmt.Sprintf("removed %d non-alphanumeric character(s)", removed))
	}
	if stripped == "" {
		fv.FinalValue = raw
		fv.Confidence = 0
		fv.Notes = append(fv.Notes, "no alphanumeric content to validate as VIN")
		return fv
	}

	hadIllegal := strings.ContainsAny(stripped, "IOQ")
	corrected, corrections := correctIllegalVINChars(stripped)
	fv.Corrections = append(fv.Corrections, corrections...)

	candidate := corrected
	exactLength := len(candidate) == 17
	switch {
	case exactLength:
	case len(candidate) >= 15 && len(candidate) <= 19:
		fv.Notes = append(fv.Notes, fmt.Sprintf("likely VIN, length mismatch (%d characters)", len(candidate)))
		if len(candidate) > 17 {
			candidate = candidate[:17]
			fv.Corrections = append(fv.Corrections, "truncated to 17 characters")
		} else {
			candidate = candidate + strings.Repeat("0", 17-len(candidate))
			fv.Corrections = append(fv.Corrections, "padded to 17 characters")
		}
	default:
		fv.FinalValue = candidate
		fv.Confidence = 15
		fv.Notes = append(fv.Notes, fmt.Sprintf("length %d is outside any plausible VIN range", len(candidate)))
		return fv
	}
	fv.FinalValue = candidate

	confidence := 0
	if exactLength {
		confidence += 40
	}
	if !hadIllegal {
		confidence += 35
	}
	if IsWellFormedVIN(candidate) {
		confidence += 25
	}
	if confidence > 100 {
		confidence = 100
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

	if !HasValidCheckDigit(candidate) {
		fv.Status = domain.FieldQuestionable
		fv.Notes = append(fv.Notes, "check digit does not match (position 9)")
	}

	return fv
}

// FindVINCandidates scans free text for VIN-like substrings. Each candidate
// should be validated independently; callers pick the first well-formed one.
func FindVINCandidates(text string) []string {
	if text == "" {
		return nil
	}
	runs := vinCandidateRe.FindAllString(strings.ToUpper(text), -1)
	var out []string
	seen := make(map[string]bool)
	for _, run := range runs {
		// Pure digit runs are far more likely phone/policy numbers.
		if !strings.ContainsAny(run, "ABCDEFGHJKLMNPRSTUVWXYZIOQ") {
			continue
		}
		if !seen[run] {
			seen[run] = true
			out = append(out, run)
		}
	}
	return out
}

// PickVIN chooses the best cleaned VIN from a set of validated candidates:
// the first well-formed candidate whose original length fell in [15,17],
// preferring standardized 17-character values.
func PickVIN(candidates []domain.FieldValidation) string {
	var fallback string
	for _, c := range candidates {
		if c.FinalValue == "" || len(c.FinalValue) != 17 {
			continue
		}
		if !IsWellFormedVIN(c.FinalValue) {
			continue
		}
		if len(stripOrOriginal(c)) == 17 {
			return c.FinalValue
		}
		if fallback == "" {
			origLen := len(stripOrOriginal(c))
			if origLen >= 15 && origLen <= 17 {
				fallback = c.FinalValue
			}
		}
	}
	return fallback
}

func stripOrOriginal(c domain.FieldValidation) string {
	s, _ := stripVIN(c.OriginalValue)
	return s
}
