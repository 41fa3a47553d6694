package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// detectConflicts compares the incoming document against every existing
// document of the same type on the vehicle. Each returned conflict references
// exactly the two documents compared. Duplicate submissions (identical dates
// and descriptive data) produce no conflicts.
func detectConflicts(vehicle *domain.VehicleRecord, doc *domain.DocumentRecord, newID func() string, now time.Time) []*domain.Conflict {
	var out []*domain.Conflict
	for _, existingID := range vehicle.DocumentsByType[doc.Type] {
		existing := vehicle.Documents[existingID]
		if existing == nil {
			continue
		}
		if c := compareExpirationDates(existing, doc, newID, now); c != nil {
			out = append(out, c)
		}
		out = append(out, compareDescriptiveData(existing, doc, newID, now)...)
	}
	return out
}

// compareExpirationDates flags a date_mismatch when both documents carry an
// expiration date and the two differ by more than one calendar day. The
// one-day tolerance absorbs timezone and OCR rounding noise.
func compareExpirationDates(a, b *domain.DocumentRecord, newID func() string, now time.Time) *domain.Conflict {
	if a.ExpirationDate == "" || b.ExpirationDate == "" {
		return nil
	}
	ta, errA := time.Parse("2006-01-02", a.ExpirationDate)
	tb, errB := time.Parse("2006-01-02", b.ExpirationDate)
	if errA != nil || errB != nil {
		return nil
	}
	diff := ta.Sub(tb)
	if diff < 0 {
		diff = -diff
	}
	if diff <= 24*time.Hour {
		return nil
	}
	return &domain.Conflict{
		ID:       newID(),
		Type:     domain.ConflictDateMismatch,
		Severity: domain.SeverityMedium,
		Description: fmt.Sprintf("%s documents disagree on expiration date: %s vs %s",
			a.Type, a.ExpirationDate, b.ExpirationDate),
		Documents:           [2]string{a.ID, b.ID},
		SuggestedResolution: "verify the expiration date against the issuing authority and supersede the incorrect document",
		DetectedAt:          now,
	}
}

// compareDescriptiveData flags a low-severity data_inconsistency for each
// descriptive field both documents carry with differing values. Make is
// compared through the alias table so Chevy and CHEVROLET do not clash.
func compareDescriptiveData(a, b *domain.DocumentRecord, newID func() string, now time.Time) []*domain.Conflict {
	var out []*domain.Conflict
	for _, field := range domain.DescriptiveFieldNames {
		va := strings.TrimSpace(a.ExtractedData[field])
		vb := strings.TrimSpace(b.ExtractedData[field])
		if va == "" || vb == "" {
			continue
		}
		if field == "make" {
			if domain.SameMake(va, vb) {
				continue
			}
		} else if strings.EqualFold(va, vb) {
			continue
		}
		out = append(out, &domain.Conflict{
			ID:       newID(),
			Type:     domain.ConflictDataInconsistency,
			Severity: domain.SeverityLow,
			Description: fmt.Sprintf("%s documents disagree on %s: %q vs %q",
				a.Type, field, va, vb),
			Documents:           [2]string{a.ID, b.ID},
			SuggestedResolution: fmt.Sprintf("confirm the vehicle's %s and correct the extraction", field),
			DetectedAt:          now,
		})
	}
	return out
}
