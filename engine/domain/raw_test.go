package domain

import (
	"encoding/json"
	"testing"
)

func TestFieldsFlattensNestedMaps(t *testing.T) {
	r := &RawExtraction{
		ExtractedData: map[string]any{
			"VIN":     " 1HGBH41JXMN109186 ",
			"vehicle": map[string]any{"Make": "Freightliner", "Year": 2022.0},
		},
	}
	fields := r.Fields()
	if fields["vin"] != "1HGBH41JXMN109186" {
		t.Errorf("vin = %q", fields["vin"])
	}
	if fields["vehicle.make"] != "Freightliner" {
		t.Errorf("vehicle.make = %q", fields["vehicle.make"])
	}
	if fields["vehicle.year"] != "2022" {
		t.Errorf("vehicle.year = %q, want integer rendering", fields["vehicle.year"])
	}
}

func TestFlexibleFieldsFillGapsOnly(t *testing.T) {
	r := &RawExtraction{
		ExtractedData: map[string]any{"make": "Kenworth"},
		FlexibleValidation: &FlexibleValidation{
			ExtractedFields: []ExtractedField{
				{Field: "Make", Value: "Peterbilt"},
				{Field: "License Plate", Value: "TX-4821"},
			},
		},
	}
	fields := r.Fields()
	if fields["make"] != "Kenworth" {
		t.Errorf("make = %q, extracted_data must win", fields["make"])
	}
	if fields["license_plate"] != "TX-4821" {
		t.Errorf("license_plate = %q", fields["license_plate"])
	}
}

func TestBaseConfidenceScales(t *testing.T) {
	mk := func(f float64) *float64 { return &f }
	tests := []struct {
		name string
		raw  *RawExtraction
		want int
	}{
		{"fractional", &RawExtraction{Confidence: mk(0.92)}, 92},
		{"percent", &RawExtraction{Confidence: mk(87)}, 87},
		{"clamped", &RawExtraction{Confidence: mk(140)}, 100},
		{"flexible fallback", &RawExtraction{FlexibleValidation: &FlexibleValidation{ConfidenceScore: 0.75}}, 75},
		{"absent", &RawExtraction{}, -1},
		{"nil receiver", nil, -1},
	}
	for _, tt := range tests {
		if got := tt.raw.BaseConfidence(); got != tt.want {
			t.Errorf("%s: BaseConfidence() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRawExtractionDecodesProviderPayload(t *testing.T) {
	payload := `{
		"document_type": "insurance",
		"file_name": "policy.pdf",
		"confidence": 0.95,
		"extracted_data": {"vin": "1HGBH41JXMN109186", "premium": 1240.5}
	}`
	var r RawExtraction
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := r.Fields()
	if fields["premium"] != "1240.5" {
		t.Errorf("premium = %q", fields["premium"])
	}
	if r.BaseConfidence() != 95 {
		t.Errorf("BaseConfidence() = %d", r.BaseConfidence())
	}
}

func TestSortedFieldKeysStable(t *testing.T) {
	r := &RawExtraction{ExtractedData: map[string]any{"b": "2", "a": "1", "c": "3"}}
	keys := r.SortedFieldKeys()
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}
