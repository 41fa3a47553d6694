package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RawExtraction is the versioned boundary schema for one document's raw
// field-extraction result, as produced by an external OCR/LLM collaborator.
// Every field is optional; consumers must tolerate any subset being absent.
type RawExtraction struct {
	DocumentType       string              `json:"document_type,omitempty"`
	ExtractedData      map[string]any      `json:"extracted_data,omitempty"`
	Confidence         *float64            `json:"confidence,omitempty"`
	FlexibleValidation *FlexibleValidation `json:"flexible_validation,omitempty"`
	FileName           string              `json:"file_name,omitempty"`
	UploadDate         string              `json:"upload_date,omitempty"`
	Source             string              `json:"source,omitempty"`
	Text               string              `json:"text,omitempty"` // full OCR text, when available
}

// FlexibleValidation is the alternative field list some extraction providers
// return instead of (or in addition to) the extracted_data map.
type FlexibleValidation struct {
	ExtractedFields []ExtractedField `json:"extracted_fields,omitempty"`
	ConfidenceScore float64          `json:"confidence_score,omitempty"`
}

// ExtractedField is a single field/value pair from flexible validation.
type ExtractedField struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Fields flattens extracted_data and flexible_validation into one normalised
// string map. Flexible fields fill gaps but never override extracted_data.
// Nested maps are flattened with dotted keys; everything else is stringified.
func (r *RawExtraction) Fields() map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	flattenInto(out, "", r.ExtractedData)
	if r.FlexibleValidation != nil {
		for _, f := range r.FlexibleValidation.ExtractedFields {
			key := normaliseKey(f.Field)
			if key == "" {
				continue
			}
			if _, ok := out[key]; !ok {
				if s := stringify(f.Value); s != "" {
					out[key] = s
				}
			}
		}
	}
	return out
}

// BaseConfidence returns the provider-reported confidence on a 0-100 scale,
// or -1 when the provider reported none.
func (r *RawExtraction) BaseConfidence() int {
	if r == nil {
		return -1
	}
	if r.Confidence != nil {
		return clampScore(*r.Confidence)
	}
	if r.FlexibleValidation != nil && r.FlexibleValidation.ConfidenceScore > 0 {
		return clampScore(r.FlexibleValidation.ConfidenceScore)
	}
	return -1
}

// SortedFieldKeys returns the flattened field keys in stable order.
func (r *RawExtraction) SortedFieldKeys() []string {
	fields := r.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenInto(out map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := normaliseKey(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, key, val)
		default:
			if s := stringify(val); s != "" {
				out[key] = s
			}
		}
	}
}

func normaliseKey(k string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(k, " ", "_")))
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		// JSON numbers decode as float64; render integers without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// clampScore converts a provider confidence (either 0-1 or 0-100 scale) to
// an int in [0,100].
func clampScore(f float64) int {
	if f > 0 && f <= 1 {
		f *= 100
	}
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f + 0.5)
}
