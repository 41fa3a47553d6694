package domain

import "strings"

// TypeSynonyms maps provider/legacy document type labels to canonical types.
var TypeSynonyms = map[string]DocumentType{
	"registration":               DocRegistration,
	"vehicle_registration":       DocRegistration,
	"registration_card":          DocRegistration,
	"cab_card":                   DocRegistration,
	"insurance":                  DocInsurance,
	"insurance_card":             DocInsurance,
	"certificate_of_insurance":   DocInsurance,
	"liability_insurance":        DocInsurance,
	"policy":                     DocInsurance,
	"cdl":                        DocCDL,
	"cdl_license":                DocCDL,
	"commercial_drivers_license": DocCDL,
	"drivers_license":            DocCDL,
	"medical_certificate":        DocMedical,
	"dot_medical":                DocMedical,
	"medical_card":               DocMedical,
	"med_cert":                   DocMedical,
	"inspection":                 DocInspection,
	"vehicle_inspection":         DocInspection,
	"annual_inspection":          DocInspection,
	"dot_inspection":             DocInspection,
	"permit":                     DocPermit,
	"operating_permit":           DocPermit,
	"oversize_permit":            DocPermit,
	"other":                      DocOther,
}

// filenameKeywords are checked in order against a lowercased file name when
// no explicit type is available. First match wins.
var filenameKeywords = []struct {
	keyword string
	docType DocumentType
}{
	{"registration", DocRegistration},
	{"insurance", DocInsurance},
	{"policy", DocInsurance},
	{"inspection", DocInspection},
	{"medical", DocMedical},
	{"medcert", DocMedical},
	{"cdl", DocCDL},
	{"license", DocCDL},
	{"permit", DocPermit},
}

// CategoryForType maps document types to the compliance category they feed.
// Permits and other documents do not drive a category.
var CategoryForType = map[DocumentType]ComplianceCategory{
	DocRegistration: CatRegistration,
	DocInsurance:    CatInsurance,
	DocInspection:   CatInspection,
	DocCDL:          CatCDL,
	DocMedical:      CatMedical,
}

// InferDocumentType resolves a document type from an explicit label, then the
// synonym table, then filename keyword heuristics, defaulting to other.
func InferDocumentType(explicit, fileName string) DocumentType {
	label := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(explicit, " ", "_")))
	if label != "" {
		if ValidDocumentTypes[DocumentType(label)] {
			return DocumentType(label)
		}
		if t, ok := TypeSynonyms[label]; ok {
			return t
		}
	}
	name := strings.ToLower(fileName)
	for _, kw := range filenameKeywords {
		if strings.Contains(name, kw.keyword) {
			return kw.docType
		}
	}
	return DocOther
}

// VINFieldNames are the known locations of a VIN in extracted data, probed in
// order when the validator did not already surface a cleaned VIN.
var VINFieldNames = []string{
	"vin",
	"vehicle_vin",
	"vin_number",
	"vehicle_identification_number",
	"vehicle.vin",
}

// ExpirationFieldNames are the known locations of an expiration date.
var ExpirationFieldNames = []string{
	"expiration_date",
	"expiry_date",
	"expires",
	"expiration",
	"valid_until",
}

// EffectiveFieldNames are the known locations of an effective date.
var EffectiveFieldNames = []string{
	"effective_date",
	"valid_from",
	"start_date",
}

// IssueFieldNames are the known locations of an issue date.
var IssueFieldNames = []string{
	"issue_date",
	"issued",
	"date_issued",
}

// DescriptiveFieldNames are the vehicle-level fields backfilled from
// documents and compared for data inconsistencies.
var DescriptiveFieldNames = []string{"make", "model", "year", "license_plate"}

// FirstField returns the first non-empty value among the named fields.
func FirstField(fields map[string]string, names []string) (string, string) {
	for _, n := range names {
		if v := strings.TrimSpace(fields[n]); v != "" {
			return n, v
		}
	}
	return "", ""
}
