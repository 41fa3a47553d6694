package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/pkg/fn"
)

// Read queries never mutate stored state. Each one deep-copies the vehicles
// it touches and refreshes the copies against the current clock, so derived
// statuses reflect today's date even when nothing has been ingested since
// the expiration passed.

// GetVehicle returns a refreshed snapshot of one vehicle. The VIN may be any
// known alias of the canonical VIN.
func (e *Engine) GetVehicle(vin string) (*domain.VehicleRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vehicle, ok := e.vehicles[e.resolveVIN(strings.ToUpper(strings.TrimSpace(vin)))]
	if !ok {
		return nil, fmt.Errorf("get vehicle: %w: %s", domain.ErrVehicleNotFound, vin)
	}
	snap := cloneVehicle(vehicle)
	refreshCompliance(snap, e.now().UTC())
	return snap, nil
}

// GetDocument returns a copy of one document and the canonical VIN it
// belongs to.
func (e *Engine) GetDocument(docID string) (*domain.DocumentRecord, string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vin, ok := e.documentIndex[docID]
	if !ok {
		return nil, "", fmt.Errorf("get document: %w: %s", domain.ErrDocumentNotFound, docID)
	}
	doc := e.vehicles[vin].Documents[docID]
	if doc == nil {
		return nil, "", fmt.Errorf("get document: %w: %s", domain.ErrDocumentNotFound, docID)
	}
	return cloneDocument(doc), vin, nil
}

// GetAllVehicles returns refreshed snapshots of every vehicle, ordered by
// canonical VIN.
func (e *Engine) GetAllVehicles() []*domain.VehicleRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now().UTC()
	out := make([]*domain.VehicleRecord, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		snap := cloneVehicle(v)
		refreshCompliance(snap, now)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out
}

// ExpiringDocument is one entry in the expiring-soon report.
type ExpiringDocument struct {
	VIN            string                    `json:"vin"`
	DocumentID     string                    `json:"document_id"`
	Category       domain.ComplianceCategory `json:"category"`
	ExpirationDate string                    `json:"expiration_date"`
	DaysUntil      int                       `json:"days_until"`
	Urgency        domain.Urgency            `json:"urgency"`
}

// GetExpiringSoon lists every category whose current document expires within
// the given number of days, soonest first. Already-expired documents are
// included with negative DaysUntil.
func (e *Engine) GetExpiringSoon(withinDays int) []ExpiringDocument {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now().UTC()
	var out []ExpiringDocument
	for _, v := range e.vehicles {
		snap := cloneVehicle(v)
		refreshCompliance(snap, now)
		for _, cat := range domain.Categories {
			s := snap.Compliance[cat]
			if s.ExpirationDate == "" || s.DaysUntilExpiry == nil {
				continue
			}
			if *s.DaysUntilExpiry > withinDays {
				continue
			}
			out = append(out, ExpiringDocument{
				VIN:            snap.VIN,
				DocumentID:     s.CurrentDocument,
				Category:       cat,
				ExpirationDate: s.ExpirationDate,
				DaysUntil:      *s.DaysUntilExpiry,
				Urgency:        urgencyFor(*s.DaysUntilExpiry),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysUntil != out[j].DaysUntil {
			return out[i].DaysUntil < out[j].DaysUntil
		}
		return out[i].VIN < out[j].VIN
	})
	return out
}

// SearchCriteria filters vehicles. String fields match case-insensitively as
// substrings; empty fields match everything.
type SearchCriteria struct {
	VIN          string               `json:"vin,omitempty"`
	Make         string               `json:"make,omitempty"`
	Model        string               `json:"model,omitempty"`
	Year         string               `json:"year,omitempty"`
	LicensePlate string               `json:"license_plate,omitempty"`
	Status       domain.OverallStatus `json:"status,omitempty"`
	Risk         domain.RiskLevel     `json:"risk_level,omitempty"`
}

// SearchVehicles returns refreshed snapshots of every vehicle matching all
// given criteria, ordered by canonical VIN.
func (e *Engine) SearchVehicles(c SearchCriteria) []*domain.VehicleRecord {
	return fn.Filter(e.GetAllVehicles(), func(v *domain.VehicleRecord) bool {
		return matchesCriteria(v, c)
	})
}

func matchesCriteria(v *domain.VehicleRecord, c SearchCriteria) bool {
	contains := func(haystack, needle string) bool {
		return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	if c.VIN != "" {
		matched := contains(v.VIN, c.VIN)
		for _, alt := range v.AlternativeVINs {
			matched = matched || contains(alt, c.VIN)
		}
		if !matched {
			return false
		}
	}
	if !contains(v.Make, c.Make) || !contains(v.Model, c.Model) ||
		!contains(v.Year, c.Year) || !contains(v.LicensePlate, c.LicensePlate) {
		return false
	}
	if c.Status != "" && v.Overall != c.Status {
		return false
	}
	if c.Risk != "" && v.Risk != c.Risk {
		return false
	}
	return true
}

// Stats is an aggregate summary of the whole fleet.
type Stats struct {
	TotalVehicles   int                           `json:"total_vehicles"`
	TotalDocuments  int                           `json:"total_documents"`
	DocumentsByType map[domain.DocumentType]int   `json:"documents_by_type"`
	ByStatus        map[domain.OverallStatus]int  `json:"vehicles_by_status"`
	ByRisk          map[domain.RiskLevel]int      `json:"vehicles_by_risk"`
	ActiveConflicts int                           `json:"active_conflicts"`
	AverageScore    int                           `json:"average_compliance_score"`
	GeneratedAt     time.Time                     `json:"generated_at"`
}

// GetStats computes fleet-wide statistics from refreshed snapshots.
func (e *Engine) GetStats() Stats {
	vehicles := e.GetAllVehicles()
	s := Stats{
		TotalVehicles:   len(vehicles),
		DocumentsByType: make(map[domain.DocumentType]int),
		ByStatus:        make(map[domain.OverallStatus]int),
		ByRisk:          make(map[domain.RiskLevel]int),
		GeneratedAt:     e.now().UTC(),
	}
	scoreSum := 0
	for _, v := range vehicles {
		s.TotalDocuments += len(v.Documents)
		for t, ids := range v.DocumentsByType {
			s.DocumentsByType[t] += len(ids)
		}
		s.ByStatus[v.Overall]++
		s.ByRisk[v.Risk]++
		s.ActiveConflicts += len(v.ActiveConflicts)
		scoreSum += v.ComplianceScore
	}
	if len(vehicles) > 0 {
		s.AverageScore = (scoreSum + len(vehicles)/2) / len(vehicles)
	}
	return s
}

func cloneVehicle(v *domain.VehicleRecord) *domain.VehicleRecord {
	out := *v
	out.AlternativeVINs = append([]string(nil), v.AlternativeVINs...)
	out.Documents = make(map[string]*domain.DocumentRecord, len(v.Documents))
	for id, d := range v.Documents {
		out.Documents[id] = cloneDocument(d)
	}
	out.DocumentsByType = make(map[domain.DocumentType][]string, len(v.DocumentsByType))
	for t, ids := range v.DocumentsByType {
		out.DocumentsByType[t] = append([]string(nil), ids...)
	}
	out.Compliance = make(map[domain.ComplianceCategory]*domain.CategoryStatus, len(v.Compliance))
	for cat, s := range v.Compliance {
		cs := *s
		if s.DaysUntilExpiry != nil {
			d := *s.DaysUntilExpiry
			cs.DaysUntilExpiry = &d
		}
		cs.Warnings = append([]string(nil), s.Warnings...)
		out.Compliance[cat] = &cs
	}
	out.History = make(map[domain.DocumentType]*domain.TypeHistory, len(v.History))
	for t, h := range v.History {
		hc := &domain.TypeHistory{Events: append([]domain.HistoryEvent(nil), h.Events...)}
		if h.Upcoming != nil {
			u := *h.Upcoming
			hc.Upcoming = &u
		}
		out.History[t] = hc
	}
	out.ActiveConflicts = cloneConflicts(v.ActiveConflicts)
	out.ResolvedConflicts = cloneConflicts(v.ResolvedConflicts)
	return &out
}

func cloneDocument(d *domain.DocumentRecord) *domain.DocumentRecord {
	out := *d
	out.ExtractedData = make(map[string]string, len(d.ExtractedData))
	for k, v := range d.ExtractedData {
		out.ExtractedData[k] = v
	}
	out.ConflictIDs = append([]string(nil), d.ConflictIDs...)
	return &out
}

func cloneConflicts(in []*domain.Conflict) []*domain.Conflict {
	if in == nil {
		return nil
	}
	out := make([]*domain.Conflict, len(in))
	for i, c := range in {
		cc := *c
		out[i] = &cc
	}
	return out
}
