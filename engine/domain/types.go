// Package domain defines core domain types, constants, and lookup tables for
// the fleet compliance engine. It acts as the shared vocabulary between the
// extraction validator and the reconciliation engine.
package domain

import "time"

// DocumentType classifies an uploaded compliance document.
type DocumentType string

const (
	DocRegistration DocumentType = "registration"
	DocInsurance    DocumentType = "insurance"
	DocCDL          DocumentType = "cdl"
	DocMedical      DocumentType = "medical_certificate"
	DocInspection   DocumentType = "inspection"
	DocPermit       DocumentType = "permit"
	DocOther        DocumentType = "other"
)

// ValidDocumentTypes is the set of recognised document types.
var ValidDocumentTypes = map[DocumentType]bool{
	DocRegistration: true, DocInsurance: true, DocCDL: true,
	DocMedical: true, DocInspection: true, DocPermit: true, DocOther: true,
}

// ComplianceCategory is one of the five tracked compliance lifecycles.
type ComplianceCategory string

const (
	CatRegistration ComplianceCategory = "registration"
	CatInsurance    ComplianceCategory = "insurance"
	CatInspection   ComplianceCategory = "inspection"
	CatCDL          ComplianceCategory = "cdl"
	CatMedical      ComplianceCategory = "medical"
)

// Categories lists the five compliance categories in canonical order.
var Categories = []ComplianceCategory{
	CatRegistration, CatInsurance, CatInspection, CatCDL, CatMedical,
}

// CategoryState is the lifecycle state of one compliance category.
type CategoryState string

const (
	StateCurrent     CategoryState = "current"
	StateExpiresSoon CategoryState = "expires_soon"
	StateExpired     CategoryState = "expired"
	StateMissing     CategoryState = "missing"
	StateUnderReview CategoryState = "under_review"
	StateInvalid     CategoryState = "invalid"
)

// OverallStatus is the derived vehicle-level compliance status.
type OverallStatus string

const (
	OverallCompliant    OverallStatus = "compliant"
	OverallNonCompliant OverallStatus = "non_compliant"
	OverallExpiresSoon  OverallStatus = "expires_soon"
	OverallReviewNeeded OverallStatus = "review_needed"
	OverallIncomplete   OverallStatus = "incomplete"
)

// RiskLevel buckets the numeric compliance score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DocumentStatus tracks whether a document is the live one for its type.
type DocumentStatus string

const (
	DocActive     DocumentStatus = "active"
	DocSuperseded DocumentStatus = "superseded"
)

// ConflictType classifies a disagreement between two documents.
type ConflictType string

const (
	ConflictDateMismatch      ConflictType = "date_mismatch"
	ConflictDataInconsistency ConflictType = "data_inconsistency"
)

// ConflictSeverity grades a conflict.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Urgency tiers an upcoming expiration.
type Urgency string

const (
	UrgencyExpired  Urgency = "expired"
	UrgencyCritical Urgency = "critical"
	UrgencyWarning  Urgency = "warning"
	UrgencyNormal   Urgency = "normal"
)

// DocumentRecord is one validated, ingested document. Extracted field values
// are never edited in place; a record is only ever superseded.
type DocumentRecord struct {
	ID             string            `json:"id"`
	FileName       string            `json:"file_name"`
	Type           DocumentType      `json:"document_type"`
	VIN            string            `json:"vin"` // as extracted from this document, pre-alias-resolution
	ExtractedData  map[string]string `json:"extracted_data,omitempty"`
	Confidence     int               `json:"confidence"`
	Status         DocumentStatus    `json:"status"`
	EffectiveDate  string            `json:"effective_date,omitempty"`
	ExpirationDate string            `json:"expiration_date,omitempty"`
	IssueDate      string            `json:"issue_date,omitempty"`
	ConflictIDs    []string          `json:"conflicts,omitempty"`
	Source         string            `json:"source,omitempty"`
	UploadedAt     time.Time         `json:"uploaded_at"`
}

// Conflict records a detected disagreement between exactly two documents of
// the same type on the same vehicle. Conflicts are data, not errors, and are
// only resolved by an external human action.
type Conflict struct {
	ID                  string           `json:"id"`
	Type                ConflictType     `json:"type"`
	Severity            ConflictSeverity `json:"severity"`
	Description         string           `json:"description"`
	Documents           [2]string        `json:"conflicting_documents"`
	SuggestedResolution string           `json:"suggested_resolution,omitempty"`
	Resolved            bool             `json:"resolved"`
	DetectedAt          time.Time        `json:"detected_at"`
}

// Involves reports whether the conflict references the given document.
func (c *Conflict) Involves(docID string) bool {
	return c.Documents[0] == docID || c.Documents[1] == docID
}

// CategoryStatus is the state of one compliance category for one vehicle.
type CategoryStatus struct {
	Status          CategoryState `json:"status"`
	CurrentDocument string        `json:"current_document,omitempty"`
	ExpirationDate  string        `json:"expiration_date,omitempty"`
	DaysUntilExpiry *int          `json:"days_until_expiry,omitempty"`
	Confidence      int           `json:"confidence"`
	LastUpdated     time.Time     `json:"last_updated"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// HistoryEvent is one entry in a document type's compliance timeline.
type HistoryEvent struct {
	DocumentID string    `json:"document_id"`
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
}

// UpcomingExpiration summarises the most recent upcoming-expiry for a type.
type UpcomingExpiration struct {
	DocumentID     string  `json:"document_id"`
	ExpirationDate string  `json:"expiration_date"`
	DaysUntil      int     `json:"days_until"`
	Urgency        Urgency `json:"urgency"`
}

// TypeHistory is the lifecycle timeline for one document type on a vehicle.
type TypeHistory struct {
	Events   []HistoryEvent      `json:"events"`
	Upcoming *UpcomingExpiration `json:"upcoming,omitempty"`
}

// VehicleRecord is the authoritative per-vehicle compliance aggregate, keyed
// by canonical VIN. Overall, ComplianceScore, and Risk are derived values:
// they are recomputed from the category statuses and active conflicts on
// every mutation and never set independently.
type VehicleRecord struct {
	VIN               string                                 `json:"vin"`
	AlternativeVINs   []string                               `json:"alternative_vins,omitempty"`
	Make              string                                 `json:"make,omitempty"`
	Model             string                                 `json:"model,omitempty"`
	Year              string                                 `json:"year,omitempty"`
	LicensePlate      string                                 `json:"license_plate,omitempty"`
	State             string                                 `json:"state,omitempty"`
	Documents         map[string]*DocumentRecord             `json:"documents"`
	DocumentsByType   map[DocumentType][]string              `json:"documents_by_type"`
	Compliance        map[ComplianceCategory]*CategoryStatus `json:"compliance_status"`
	Overall           OverallStatus                          `json:"overall_status"`
	History           map[DocumentType]*TypeHistory          `json:"compliance_history,omitempty"`
	ActiveConflicts   []*Conflict                            `json:"active_conflicts,omitempty"`
	ResolvedConflicts []*Conflict                            `json:"resolved_conflicts,omitempty"`
	ComplianceScore   int                                    `json:"compliance_score"`
	Risk              RiskLevel                              `json:"risk_level"`
	CreatedAt         time.Time                              `json:"created_at"`
	UpdatedAt         time.Time                              `json:"updated_at"`
}

// FieldStatus bands a single field validation outcome.
type FieldStatus string

const (
	FieldExcellent    FieldStatus = "excellent"
	FieldGood         FieldStatus = "good"
	FieldAcceptable   FieldStatus = "acceptable"
	FieldQuestionable FieldStatus = "questionable"
)

// FieldValidation is the per-field output of the extraction validator.
type FieldValidation struct {
	Field         string      `json:"field"`
	OriginalValue string      `json:"original_value"`
	FinalValue    string      `json:"final_value"`
	Confidence    int         `json:"confidence"`
	Status        FieldStatus `json:"status"`
	Corrections   []string    `json:"corrections,omitempty"`
	Notes         []string    `json:"notes,omitempty"`
}
