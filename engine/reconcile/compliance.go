package reconcile

import (
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

const expiresSoonWindowDays = 30

// daysUntil returns whole calendar days from now's date to the ISO date.
// Negative means the date has passed.
func daysUntil(iso string, now time.Time) int {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return 0
	}
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(nowDay).Hours() / 24)
}

// refreshCompliance recomputes every derived value on the vehicle from its
// documents and conflicts against the given clock: document supersession,
// the five category statuses, overall status, compliance score, and risk.
// Derived values are never set independently of this function.
func refreshCompliance(vehicle *domain.VehicleRecord, now time.Time) {
	supersedeStaleDocuments(vehicle, now)
	for _, cat := range domain.Categories {
		vehicle.Compliance[cat] = deriveCategory(vehicle, cat, now)
	}
	vehicle.Overall = deriveOverall(vehicle)
	vehicle.ComplianceScore = computeScore(vehicle)
	// Risk follows the published score, not the overall status, so the two
	// never contradict each other on the wire.
	vehicle.Risk = riskForScore(vehicle.ComplianceScore)
}

// supersedeStaleDocuments marks a document superseded once its expiration
// date has passed and a newer document of the same type exists. The newest
// document of a type stays active even when expired.
func supersedeStaleDocuments(vehicle *domain.VehicleRecord, now time.Time) {
	for _, ids := range vehicle.DocumentsByType {
		for i, id := range ids {
			doc := vehicle.Documents[id]
			if doc == nil {
				continue
			}
			isNewest := i == len(ids)-1
			if !isNewest && doc.ExpirationDate != "" && daysUntil(doc.ExpirationDate, now) < 0 {
				doc.Status = domain.DocSuperseded
			}
		}
	}
}

// deriveCategory computes one category's status from the newest document of
// its driving type. Arrival order, not document dates, decides which document
// is newest.
func deriveCategory(vehicle *domain.VehicleRecord, cat domain.ComplianceCategory, now time.Time) *domain.CategoryStatus {
	status := &domain.CategoryStatus{
		Status:      domain.StateMissing,
		LastUpdated: now,
	}

	var newest *domain.DocumentRecord
	for docType, c := range domain.CategoryForType {
		if c != cat {
			continue
		}
		ids := vehicle.DocumentsByType[docType]
		if len(ids) > 0 {
			newest = vehicle.Documents[ids[len(ids)-1]]
		}
	}
	if newest == nil {
		return status
	}

	status.CurrentDocument = newest.ID
	status.Confidence = newest.Confidence
	for _, c := range vehicle.ActiveConflicts {
		if c.Involves(newest.ID) && !c.Resolved {
			status.Warnings = append(status.Warnings, c.Description)
		}
	}

	if newest.ExpirationDate == "" {
		if newest.Confidence > 70 {
			status.Status = domain.StateCurrent
		} else {
			status.Status = domain.StateUnderReview
		}
		return status
	}

	days := daysUntil(newest.ExpirationDate, now)
	status.ExpirationDate = newest.ExpirationDate
	status.DaysUntilExpiry = &days
	switch {
	case days < 0:
		status.Status = domain.StateExpired
	case days <= expiresSoonWindowDays:
		status.Status = domain.StateExpiresSoon
	default:
		status.Status = domain.StateCurrent
	}
	return status
}

// deriveOverall folds the five category states and the unresolved conflicts
// into the vehicle-level status.
func deriveOverall(vehicle *domain.VehicleRecord) domain.OverallStatus {
	var expired, soon, attention, current int
	for _, cat := range domain.Categories {
		switch vehicle.Compliance[cat].Status {
		case domain.StateExpired:
			expired++
		case domain.StateExpiresSoon:
			soon++
		case domain.StateMissing, domain.StateUnderReview, domain.StateInvalid:
			attention++
		case domain.StateCurrent:
			current++
		}
	}

	switch {
	case expired > 0 || len(vehicle.ActiveConflicts) > 0:
		return domain.OverallNonCompliant
	case soon > 0:
		return domain.OverallExpiresSoon
	case attention > 0:
		return domain.OverallReviewNeeded
	case current == len(domain.Categories):
		return domain.OverallCompliant
	default:
		return domain.OverallIncomplete
	}
}

// categoryBase is the state's base score before confidence weighting.
func categoryBase(s *domain.CategoryStatus) int {
	switch s.Status {
	case domain.StateCurrent:
		return 100
	case domain.StateExpiresSoon:
		return 80
	case domain.StateUnderReview:
		return 60
	case domain.StateInvalid:
		return 40
	case domain.StateExpired:
		return 0
	case domain.StateMissing:
		if s.Confidence > 0 {
			return 20
		}
		return 0
	default:
		return 0
	}
}

// computeScore averages the confidence-weighted category scores, rounded to
// the nearest integer. Always in [0,100].
func computeScore(vehicle *domain.VehicleRecord) int {
	total := 0
	for _, cat := range domain.Categories {
		s := vehicle.Compliance[cat]
		total += categoryBase(s) * s.Confidence
	}
	n := len(domain.Categories) * 100
	return (total + n/2) / n
}

// riskForScore bands the numeric score.
func riskForScore(score int) domain.RiskLevel {
	switch {
	case score >= 90:
		return domain.RiskLow
	case score >= 70:
		return domain.RiskMedium
	case score >= 40:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}
