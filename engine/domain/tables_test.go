package domain

import "testing"

func TestInferDocumentType(t *testing.T) {
	tests := []struct {
		explicit string
		fileName string
		want     DocumentType
	}{
		{"insurance", "", DocInsurance},
		{"certificate_of_insurance", "", DocInsurance},
		{"Vehicle Registration", "", DocRegistration},
		{"cab_card", "", DocRegistration},
		{"dot_medical", "", DocMedical},
		{"", "2024_annual_inspection.pdf", DocInspection},
		{"", "smith_cdl_front.jpg", DocCDL},
		{"", "POLICY-2024.pdf", DocInsurance},
		{"", "receipt.pdf", DocOther},
		{"unknown_label", "receipt.pdf", DocOther},
		{"permit", "", DocPermit},
	}
	for _, tt := range tests {
		if got := InferDocumentType(tt.explicit, tt.fileName); got != tt.want {
			t.Errorf("InferDocumentType(%q, %q) = %q, want %q", tt.explicit, tt.fileName, got, tt.want)
		}
	}
}

func TestFirstField(t *testing.T) {
	fields := map[string]string{
		"expiry_date": "2026-01-01",
		"expires":     "2026-02-02",
	}
	name, value := FirstField(fields, ExpirationFieldNames)
	if name != "expiry_date" || value != "2026-01-01" {
		t.Errorf("FirstField = %q, %q", name, value)
	}

	name, value = FirstField(map[string]string{"expires": "  "}, ExpirationFieldNames)
	if name != "" || value != "" {
		t.Errorf("blank value matched: %q, %q", name, value)
	}
}

func TestCategoryForTypeCoversDrivingTypes(t *testing.T) {
	for _, dt := range []DocumentType{DocRegistration, DocInsurance, DocInspection, DocCDL, DocMedical} {
		if _, ok := CategoryForType[dt]; !ok {
			t.Errorf("no category for %q", dt)
		}
	}
	if _, ok := CategoryForType[DocPermit]; ok {
		t.Error("permits should not drive a compliance category")
	}
}
