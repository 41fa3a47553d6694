// Package reconcile owns the canonical, continuously-updated compliance view
// of each vehicle across all documents ever ingested for it. It consumes the
// extraction validator's output, resolves documents to a canonical vehicle
// identity through VIN aliases, merges them into per-vehicle aggregates,
// tracks conflicts, and derives compliance status, score, and risk.
package reconcile

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/engine/extract"
)

// AddResult is the outcome of one AddDocument call. Success is false only
// when no usable VIN could be extracted; in that case no state was mutated.
type AddResult struct {
	Success    bool               `json:"success"`
	VehicleVIN string             `json:"vehicle_vin,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
	Conflicts  []*domain.Conflict `json:"conflicts,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Engine is the aggregate store. It is constructed by the caller, which owns
// its lifetime; there is no package-level instance.
//
// AddDocument executes as an atomic read-modify-write under the write lock,
// so two documents for the same VIN processed concurrently cannot lose
// updates. Read queries work on deep-copied snapshots refreshed against the
// current clock, so they observe either the pre- or post-update state of a
// vehicle, never a half-applied one.
type Engine struct {
	mu            sync.RWMutex
	vehicles      map[string]*domain.VehicleRecord
	vinAliases    map[string]string // alias -> canonical
	documentIndex map[string]string // document id -> canonical VIN

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// New creates an empty Engine.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		vehicles:      make(map[string]*domain.VehicleRecord),
		vinAliases:    make(map[string]string),
		documentIndex: make(map[string]string),
		log:           log,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// AddDocument merges one validated document into the vehicle aggregate it
// resolves to, creating the aggregate on first sight of a new VIN.
func (e *Engine) AddDocument(raw *domain.RawExtraction, report extract.Report) AddResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()

	extractedVIN := e.candidateVIN(raw, report)
	if extractedVIN == "" {
		return AddResult{
			Success:  false,
			Warnings: []string{"no usable VIN could be extracted from the document"},
		}
	}

	canonical := e.resolveVIN(extractedVIN)
	vehicle, ok := e.vehicles[canonical]
	if !ok {
		vehicle = newVehicleRecord(canonical, now)
		e.vehicles[canonical] = vehicle
	}
	e.recordAliases(vehicle, canonical, report)

	doc := e.buildDocument(raw, report, extractedVIN, now)
	conflicts := detectConflicts(vehicle, doc, e.newID, now)
	for _, c := range conflicts {
		doc.ConflictIDs = append(doc.ConflictIDs, c.ID)
		vehicle.ActiveConflicts = append(vehicle.ActiveConflicts, c)
	}

	vehicle.Documents[doc.ID] = doc
	vehicle.DocumentsByType[doc.Type] = append(vehicle.DocumentsByType[doc.Type], doc.ID)
	e.documentIndex[doc.ID] = canonical
	backfillVehicleFields(vehicle, doc)

	refreshCompliance(vehicle, now)
	appendHistory(vehicle, doc, now)
	vehicle.UpdatedAt = now

	e.log.Info("document reconciled",
		"vin", canonical,
		"document_id", doc.ID,
		"document_type", doc.Type,
		"conflicts", len(conflicts),
		"score", vehicle.ComplianceScore,
	)

	var warnings []string
	warnings = append(warnings, report.Warnings...)
	return AddResult{
		Success:    true,
		VehicleVIN: canonical,
		DocumentID: doc.ID,
		Conflicts:  conflicts,
		Warnings:   warnings,
	}
}

// candidateVIN extracts the VIN to key on: the validator's cleaned value
// first, then known field locations, then a scan of every field value for a
// VIN-like token.
func (e *Engine) candidateVIN(raw *domain.RawExtraction, report extract.Report) string {
	if report.CleanVIN != "" {
		return report.CleanVIN
	}
	fields := report.FieldMap
	if len(fields) == 0 && raw != nil {
		fields = raw.Fields()
	}
	if _, v := domain.FirstField(fields, domain.VINFieldNames); v != "" {
		if fv := extract.ValidateVIN("vin", v); len(fv.FinalValue) == 17 {
			return fv.FinalValue
		}
	}
	var validated []domain.FieldValidation
	for _, v := range fields {
		token := strings.ToUpper(strings.TrimSpace(v))
		if len(token) >= 15 && len(token) <= 17 && isAlphanumeric(token) {
			validated = append(validated, extract.ValidateVIN("field_scan", token))
		}
	}
	return extract.PickVIN(validated)
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return s != ""
}

// resolveVIN maps an extracted VIN to its canonical form via the alias map.
// An unknown VIN is its own canonical form.
func (e *Engine) resolveVIN(vin string) string {
	if canonical, ok := e.vinAliases[vin]; ok {
		return canonical
	}
	return vin
}

// recordAliases registers every uncorrected VIN variant seen for this
// document as an alias of the canonical VIN, so later documents carrying the
// uncorrected form resolve to the same vehicle.
func (e *Engine) recordAliases(vehicle *domain.VehicleRecord, canonical string, report extract.Report) {
	for _, cand := range report.VINCandidates {
		variant := strings.ToUpper(strings.TrimSpace(cand.OriginalValue))
		if variant == "" || variant == canonical {
			continue
		}
		if cand.FinalValue != canonical {
			continue
		}
		if _, exists := e.vinAliases[variant]; !exists {
			e.vinAliases[variant] = canonical
			vehicle.AlternativeVINs = append(vehicle.AlternativeVINs, variant)
		}
	}
}

func newVehicleRecord(vin string, now time.Time) *domain.VehicleRecord {
	v := &domain.VehicleRecord{
		VIN:             vin,
		Documents:       make(map[string]*domain.DocumentRecord),
		DocumentsByType: make(map[domain.DocumentType][]string),
		Compliance:      make(map[domain.ComplianceCategory]*domain.CategoryStatus),
		History:         make(map[domain.DocumentType]*domain.TypeHistory),
		Overall:         domain.OverallIncomplete,
		Risk:            domain.RiskMedium,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, cat := range domain.Categories {
		v.Compliance[cat] = &domain.CategoryStatus{
			Status:      domain.StateMissing,
			LastUpdated: now,
		}
	}
	return v
}

// buildDocument assembles the immutable DocumentRecord for this ingestion.
func (e *Engine) buildDocument(raw *domain.RawExtraction, report extract.Report, extractedVIN string, now time.Time) *domain.DocumentRecord {
	fileName := "document"
	source := ""
	explicitType := ""
	if raw != nil {
		if raw.FileName != "" {
			fileName = raw.FileName
		}
		source = raw.Source
		explicitType = raw.DocumentType
	}
	fields := report.FieldMap
	if explicitType == "" {
		explicitType = fields["document_type"]
	}

	doc := &domain.DocumentRecord{
		ID:            e.newID(),
		FileName:      fileName,
		Type:          domain.InferDocumentType(explicitType, fileName),
		VIN:           extractedVIN,
		ExtractedData: fields,
		Confidence:    report.Confidence,
		Status:        domain.DocActive,
		Source:        source,
		UploadedAt:    now,
	}
	if _, v := domain.FirstField(fields, domain.ExpirationFieldNames); v != "" {
		doc.ExpirationDate = isoOrEmpty(v)
	}
	if _, v := domain.FirstField(fields, domain.EffectiveFieldNames); v != "" {
		doc.EffectiveDate = isoOrEmpty(v)
	}
	if _, v := domain.FirstField(fields, domain.IssueFieldNames); v != "" {
		doc.IssueDate = isoOrEmpty(v)
	}
	return doc
}

// isoOrEmpty keeps only values already normalised to YYYY-MM-DD; anything
// else failed date validation upstream and is dropped from the date slots
// (it remains visible in the extracted data map).
func isoOrEmpty(v string) string {
	if _, err := time.Parse("2006-01-02", v); err != nil {
		return ""
	}
	return v
}

// backfillVehicleFields fills empty vehicle-level descriptive fields from the
// document's extracted data. Existing values are never overwritten.
func backfillVehicleFields(vehicle *domain.VehicleRecord, doc *domain.DocumentRecord) {
	data := doc.ExtractedData
	if vehicle.Make == "" {
		vehicle.Make = data["make"]
	}
	if vehicle.Model == "" {
		vehicle.Model = data["model"]
	}
	if vehicle.Year == "" {
		vehicle.Year = data["year"]
	}
	if vehicle.LicensePlate == "" {
		vehicle.LicensePlate = data["license_plate"]
	}
	if vehicle.State == "" {
		vehicle.State = data["state"]
	}
}

// appendHistory records the ingestion in the type's timeline and refreshes
// its upcoming-expiration summary.
func appendHistory(vehicle *domain.VehicleRecord, doc *domain.DocumentRecord, now time.Time) {
	h := vehicle.History[doc.Type]
	if h == nil {
		h = &domain.TypeHistory{}
		vehicle.History[doc.Type] = h
	}
	note := ""
	if len(doc.ConflictIDs) > 0 {
		note = fmt.Sprintf("%d conflict(s) detected", len(doc.ConflictIDs))
	}
	h.Events = append(h.Events, domain.HistoryEvent{
		DocumentID: doc.ID,
		Action:     "document_added",
		Note:       note,
		At:         now,
	})
	if doc.ExpirationDate != "" {
		days := daysUntil(doc.ExpirationDate, now)
		h.Upcoming = &domain.UpcomingExpiration{
			DocumentID:     doc.ID,
			ExpirationDate: doc.ExpirationDate,
			DaysUntil:      days,
			Urgency:        urgencyFor(days),
		}
	}
}

// urgencyFor tiers days-until-expiry: expired < 0, critical <= 7,
// warning <= 30, else normal.
func urgencyFor(days int) domain.Urgency {
	switch {
	case days < 0:
		return domain.UrgencyExpired
	case days <= 7:
		return domain.UrgencyCritical
	case days <= 30:
		return domain.UrgencyWarning
	default:
		return domain.UrgencyNormal
	}
}

// ResolveConflict marks a conflict resolved and moves it to the resolved
// list. Resolution is always an external, human-driven action; the engine
// never resolves conflicts on its own.
func (e *Engine) ResolveConflict(vin, conflictID, resolution string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vehicle, ok := e.vehicles[e.resolveVIN(strings.ToUpper(strings.TrimSpace(vin)))]
	if !ok {
		return fmt.Errorf("resolve conflict: %w: %s", domain.ErrVehicleNotFound, vin)
	}
	for i, c := range vehicle.ActiveConflicts {
		if c.ID != conflictID {
			continue
		}
		c.Resolved = true
		if resolution != "" {
			c.SuggestedResolution = resolution
		}
		vehicle.ActiveConflicts = append(vehicle.ActiveConflicts[:i], vehicle.ActiveConflicts[i+1:]...)
		vehicle.ResolvedConflicts = append(vehicle.ResolvedConflicts, c)
		now := e.now().UTC()
		refreshCompliance(vehicle, now)
		vehicle.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("resolve conflict: %w: %s", domain.ErrConflictNotFound, conflictID)
}
