package reconcile

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/engine/extract"
)

const testVIN = "1HGBH41JXMN109186"

func testEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	e := New(nil)
	e.now = func() time.Time { return now }
	seq := 0
	e.newID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return e
}

func rawDoc(docType, fileName string, confidence float64, fields map[string]any) *domain.RawExtraction {
	return &domain.RawExtraction{
		DocumentType:  docType,
		FileName:      fileName,
		Confidence:    &confidence,
		ExtractedData: fields,
		Source:        "test",
	}
}

func addDoc(t *testing.T, e *Engine, raw *domain.RawExtraction) AddResult {
	t.Helper()
	report := extract.NewValidator().Validate(raw)
	res := e.AddDocument(raw, report)
	if !res.Success {
		t.Fatalf("AddDocument failed: warnings=%v", res.Warnings)
	}
	return res
}

func isoDaysFromNow(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format("2006-01-02")
}

func TestAddDocumentCreatesVehicle(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	res := addDoc(t, e, rawDoc("registration", "reg.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 45),
		"make":            "Freightliner",
		"model":           "Cascadia",
	}))
	if res.VehicleVIN != testVIN {
		t.Fatalf("VehicleVIN = %q, want %q", res.VehicleVIN, testVIN)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("unexpected conflicts: %v", res.Conflicts)
	}

	v, err := e.GetVehicle(testVIN)
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if v.Make != "Freightliner" || v.Model != "Cascadia" {
		t.Errorf("vehicle fields not backfilled: make=%q model=%q", v.Make, v.Model)
	}
	reg := v.Compliance[domain.CatRegistration]
	if reg.Status != domain.StateCurrent {
		t.Errorf("registration status = %s, want current", reg.Status)
	}
	if reg.DaysUntilExpiry == nil || *reg.DaysUntilExpiry != 45 {
		t.Errorf("DaysUntilExpiry = %v, want 45", reg.DaysUntilExpiry)
	}
	for _, cat := range []domain.ComplianceCategory{domain.CatInsurance, domain.CatInspection, domain.CatCDL, domain.CatMedical} {
		if got := v.Compliance[cat].Status; got != domain.StateMissing {
			t.Errorf("%s status = %s, want missing", cat, got)
		}
	}
	if v.Overall != domain.OverallReviewNeeded {
		t.Errorf("overall = %s, want review_needed", v.Overall)
	}
}

func TestNoVINDocumentRejectedWithoutMutation(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	raw := rawDoc("insurance", "policy.pdf", 90, map[string]any{
		"policy_number": "POL-123456",
	})
	report := extract.NewValidator().Validate(raw)
	res := e.AddDocument(raw, report)
	if res.Success {
		t.Fatal("expected Success=false for document without VIN")
	}
	if len(res.Warnings) == 0 {
		t.Error("expected an explanatory warning")
	}
	if got := len(e.GetAllVehicles()); got != 0 {
		t.Errorf("vehicle count = %d, want 0 (no mutation on failure)", got)
	}
}

func TestVINAliasResolution(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	// O and I are illegal in a VIN; the validator corrects them to 0 and 1,
	// so this variant lands on the same canonical VIN.
	dirty := "1HGBH41JXMN1O9I86"
	addDoc(t, e, rawDoc("registration", "reg.pdf", 90, map[string]any{
		"vin": dirty,
	}))
	addDoc(t, e, rawDoc("insurance", "ins.pdf", 90, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 90),
	}))

	all := e.GetAllVehicles()
	if len(all) != 1 {
		t.Fatalf("vehicle count = %d, want 1 (alias should resolve)", len(all))
	}
	v := all[0]
	if v.VIN != testVIN {
		t.Errorf("canonical VIN = %q, want %q", v.VIN, testVIN)
	}
	if len(v.Documents) != 2 {
		t.Errorf("document count = %d, want 2", len(v.Documents))
	}

	// Querying by the dirty variant reaches the same vehicle.
	byAlias, err := e.GetVehicle(dirty)
	if err != nil {
		t.Fatalf("GetVehicle(alias): %v", err)
	}
	if byAlias.VIN != testVIN {
		t.Errorf("alias lookup VIN = %q, want %q", byAlias.VIN, testVIN)
	}
}

func TestInsuranceDateMismatchConflict(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	addDoc(t, e, rawDoc("insurance", "ins-a.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 100),
	}))
	res := addDoc(t, e, rawDoc("insurance", "ins-b.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 110),
	}))

	if len(res.Conflicts) != 1 {
		t.Fatalf("conflict count = %d, want exactly 1", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Type != domain.ConflictDateMismatch {
		t.Errorf("conflict type = %s, want date_mismatch", c.Type)
	}
	if c.Severity != domain.SeverityMedium {
		t.Errorf("severity = %s, want medium", c.Severity)
	}
	if c.Documents[0] == "" || c.Documents[1] == "" || c.Documents[0] == c.Documents[1] {
		t.Errorf("conflict must reference the two compared documents, got %v", c.Documents)
	}

	v, _ := e.GetVehicle(testVIN)
	if v.Overall != domain.OverallNonCompliant {
		t.Errorf("overall = %s, want non_compliant with active conflict", v.Overall)
	}
	if len(v.ActiveConflicts) != 1 {
		t.Errorf("active conflicts = %d, want 1", len(v.ActiveConflicts))
	}
}

func TestOneDayDateToleranceProducesNoConflict(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	addDoc(t, e, rawDoc("insurance", "ins-a.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 100),
	}))
	res := addDoc(t, e, rawDoc("insurance", "ins-b.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 101),
	}))
	if len(res.Conflicts) != 0 {
		t.Errorf("one-day difference should be tolerated, got %v", res.Conflicts)
	}
}

func TestDataInconsistencyConflict(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	exp := isoDaysFromNow(now, 120)
	addDoc(t, e, rawDoc("registration", "reg-a.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": exp,
		"make":            "Freightliner",
	}))
	res := addDoc(t, e, rawDoc("registration", "reg-b.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": exp,
		"make":            "Peterbilt",
	}))
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflict count = %d, want 1", len(res.Conflicts))
	}
	if res.Conflicts[0].Type != domain.ConflictDataInconsistency {
		t.Errorf("conflict type = %s, want data_inconsistency", res.Conflicts[0].Type)
	}
	if res.Conflicts[0].Severity != domain.SeverityLow {
		t.Errorf("severity = %s, want low", res.Conflicts[0].Severity)
	}
}

func TestMakeAliasesDoNotConflict(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	exp := isoDaysFromNow(now, 120)
	addDoc(t, e, rawDoc("registration", "reg-a.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": exp,
		"make":            "FREIGHTLINER",
	}))
	res := addDoc(t, e, rawDoc("registration", "reg-b.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": exp,
		"make":            "Freightliner",
	}))
	if len(res.Conflicts) != 0 {
		t.Errorf("same make spelled differently should not conflict, got %v", res.Conflicts)
	}
}

// addFullSet ingests one document per category, each expiring as given.
func addFullSet(t *testing.T, e *Engine, now time.Time, expiryDays map[domain.DocumentType]int) {
	t.Helper()
	for _, dt := range []domain.DocumentType{
		domain.DocRegistration, domain.DocInsurance, domain.DocInspection, domain.DocCDL, domain.DocMedical,
	} {
		addDoc(t, e, rawDoc(string(dt), string(dt)+".pdf", 98, map[string]any{
			"vin":             testVIN,
			"expiration_date": isoDaysFromNow(now, expiryDays[dt]),
		}))
	}
}

func TestFullyCurrentVehicleIsCompliant(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)
	addFullSet(t, e, now, map[domain.DocumentType]int{
		domain.DocRegistration: 200, domain.DocInsurance: 180,
		domain.DocInspection: 150, domain.DocCDL: 300, domain.DocMedical: 90,
	})

	v, _ := e.GetVehicle(testVIN)
	if v.Overall != domain.OverallCompliant {
		t.Errorf("overall = %s, want compliant", v.Overall)
	}
	if v.Risk != domain.RiskLow {
		t.Errorf("risk = %s, want low", v.Risk)
	}
	if v.ComplianceScore < 90 || v.ComplianceScore > 100 {
		t.Errorf("score = %d, want in [90,100]", v.ComplianceScore)
	}
}

func TestExpiringSoonDegradesStatusAndScore(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)
	addFullSet(t, e, now, map[domain.DocumentType]int{
		domain.DocRegistration: 200, domain.DocInsurance: 5,
		domain.DocInspection: 150, domain.DocCDL: 300, domain.DocMedical: 90,
	})

	v, _ := e.GetVehicle(testVIN)
	if v.Overall != domain.OverallExpiresSoon {
		t.Errorf("overall = %s, want expires_soon", v.Overall)
	}
	if v.Compliance[domain.CatInsurance].Status != domain.StateExpiresSoon {
		t.Errorf("insurance status = %s, want expires_soon", v.Compliance[domain.CatInsurance].Status)
	}
	if v.ComplianceScore >= 100 || v.ComplianceScore <= 70 {
		t.Errorf("score = %d, want in (70,100)", v.ComplianceScore)
	}
}

func TestExpiredCategoryMakesVehicleNonCompliant(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)
	addFullSet(t, e, now, map[domain.DocumentType]int{
		domain.DocRegistration: 200, domain.DocInsurance: -10,
		domain.DocInspection: 150, domain.DocCDL: 300, domain.DocMedical: 90,
	})

	v, _ := e.GetVehicle(testVIN)
	if v.Compliance[domain.CatInsurance].Status != domain.StateExpired {
		t.Errorf("insurance status = %s, want expired", v.Compliance[domain.CatInsurance].Status)
	}
	if v.Overall != domain.OverallNonCompliant {
		t.Errorf("overall = %s, want non_compliant", v.Overall)
	}
}

func TestLazyRefreshReflectsPassageOfTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)
	addFullSet(t, e, now, map[domain.DocumentType]int{
		domain.DocRegistration: 200, domain.DocInsurance: 10,
		domain.DocInspection: 150, domain.DocCDL: 300, domain.DocMedical: 90,
	})

	// Advance the clock past the insurance expiry without any ingestion.
	e.now = func() time.Time { return now.AddDate(0, 0, 20) }

	v, _ := e.GetVehicle(testVIN)
	if v.Compliance[domain.CatInsurance].Status != domain.StateExpired {
		t.Errorf("insurance status = %s, want expired after clock advance",
			v.Compliance[domain.CatInsurance].Status)
	}
	if v.Overall != domain.OverallNonCompliant {
		t.Errorf("overall = %s, want non_compliant after clock advance", v.Overall)
	}
}

func TestScoreAlwaysInRangeAndRiskMatchesBand(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []map[domain.DocumentType]int{
		{domain.DocRegistration: 200, domain.DocInsurance: 180, domain.DocInspection: 150, domain.DocCDL: 300, domain.DocMedical: 90},
		{domain.DocRegistration: -5, domain.DocInsurance: -5, domain.DocInspection: -5, domain.DocCDL: -5, domain.DocMedical: -5},
		{domain.DocRegistration: 15, domain.DocInsurance: 15, domain.DocInspection: 15, domain.DocCDL: 15, domain.DocMedical: 15},
		{domain.DocRegistration: 200, domain.DocInsurance: -5, domain.DocInspection: 15, domain.DocCDL: 300, domain.DocMedical: 90},
	}
	for i, expiry := range cases {
		e := testEngine(t, now)
		addFullSet(t, e, now, expiry)
		v, _ := e.GetVehicle(testVIN)
		if v.ComplianceScore < 0 || v.ComplianceScore > 100 {
			t.Errorf("case %d: score = %d, want in [0,100]", i, v.ComplianceScore)
		}
		want := riskForScore(v.ComplianceScore)
		if v.Risk != want {
			t.Errorf("case %d: risk = %s, want %s for score %d", i, v.Risk, want, v.ComplianceScore)
		}
	}
}

func TestResolveConflictRestoresCompliance(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	addDoc(t, e, rawDoc("insurance", "ins-a.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 100),
	}))
	res := addDoc(t, e, rawDoc("insurance", "ins-b.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 110),
	}))
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflict count = %d, want 1", len(res.Conflicts))
	}

	if err := e.ResolveConflict(testVIN, res.Conflicts[0].ID, "confirmed renewal policy"); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	v, _ := e.GetVehicle(testVIN)
	if len(v.ActiveConflicts) != 0 {
		t.Errorf("active conflicts = %d, want 0 after resolution", len(v.ActiveConflicts))
	}
	if len(v.ResolvedConflicts) != 1 {
		t.Errorf("resolved conflicts = %d, want 1", len(v.ResolvedConflicts))
	}
	if v.Overall == domain.OverallNonCompliant {
		t.Errorf("overall still non_compliant after conflict resolution")
	}

	if err := e.ResolveConflict(testVIN, "missing", ""); !errors.Is(err, domain.ErrConflictNotFound) {
		t.Errorf("ResolveConflict(unknown) error = %v, want ErrConflictNotFound", err)
	}
	if err := e.ResolveConflict("5YJSA1E26HF000337", "x", ""); !errors.Is(err, domain.ErrVehicleNotFound) {
		t.Errorf("ResolveConflict(unknown vehicle) error = %v, want ErrVehicleNotFound", err)
	}
}

func TestGetExpiringSoon(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)
	addFullSet(t, e, now, map[domain.DocumentType]int{
		domain.DocRegistration: 200, domain.DocInsurance: 5,
		domain.DocInspection: 25, domain.DocCDL: 300, domain.DocMedical: -3,
	})

	got := e.GetExpiringSoon(30)
	if len(got) != 3 {
		t.Fatalf("expiring count = %d, want 3: %+v", len(got), got)
	}
	// Soonest first.
	if got[0].Category != domain.CatMedical || got[0].Urgency != domain.UrgencyExpired {
		t.Errorf("first entry = %+v, want expired medical", got[0])
	}
	if got[1].Category != domain.CatInsurance || got[1].Urgency != domain.UrgencyCritical {
		t.Errorf("second entry = %+v, want critical insurance", got[1])
	}
	if got[2].Category != domain.CatInspection || got[2].Urgency != domain.UrgencyWarning {
		t.Errorf("third entry = %+v, want warning inspection", got[2])
	}
}

func TestSearchVehicles(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	addDoc(t, e, rawDoc("registration", "reg.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 100),
		"make":            "Freightliner",
		"license_plate":   "TX-4821",
	}))
	addDoc(t, e, rawDoc("registration", "reg2.pdf", 95, map[string]any{
		"vin":             "5YJSA1E26HF000337",
		"expiration_date": isoDaysFromNow(now, 100),
		"make":            "Tesla",
	}))

	cases := []struct {
		name     string
		criteria SearchCriteria
		want     int
	}{
		{"by make substring", SearchCriteria{Make: "freight"}, 1},
		{"by plate", SearchCriteria{LicensePlate: "tx-4821"}, 1},
		{"by vin fragment", SearchCriteria{VIN: "MN109"}, 1},
		{"no match", SearchCriteria{Make: "kenworth"}, 0},
		{"all", SearchCriteria{}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.SearchVehicles(tc.criteria)
			if len(got) != tc.want {
				t.Errorf("match count = %d, want %d", len(got), tc.want)
			}
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	addDoc(t, e, rawDoc("registration", "reg.pdf", 95, map[string]any{
		"vin":             "1HGBH41JXMN1O9I86", // dirty variant, creates an alias
		"expiration_date": isoDaysFromNow(now, 100),
		"make":            "Freightliner",
	}))
	addDoc(t, e, rawDoc("insurance", "ins.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 60),
	}))

	exported := e.Export()
	if exported.Stats.TotalVehicles != 1 || exported.Stats.TotalDocuments != 2 {
		t.Fatalf("export stats = %+v, want 1 vehicle, 2 documents", exported.Stats)
	}

	restored := testEngine(t, now)
	if err := restored.Import(exported); err != nil {
		t.Fatalf("Import: %v", err)
	}

	orig, _ := e.GetVehicle(testVIN)
	back, err := restored.GetVehicle(testVIN)
	if err != nil {
		t.Fatalf("GetVehicle after import: %v", err)
	}
	if back.ComplianceScore != orig.ComplianceScore || back.Overall != orig.Overall || back.Risk != orig.Risk {
		t.Errorf("derived state diverged after round trip: got %s/%d/%s, want %s/%d/%s",
			back.Overall, back.ComplianceScore, back.Risk, orig.Overall, orig.ComplianceScore, orig.Risk)
	}
	if len(back.Documents) != len(orig.Documents) {
		t.Errorf("document count = %d, want %d", len(back.Documents), len(orig.Documents))
	}

	// Alias resolution survives the round trip.
	if _, err := restored.GetVehicle("1HGBH41JXMN1O9I86"); err != nil {
		t.Errorf("alias lookup after import: %v", err)
	}

	if err := restored.Import(nil); !errors.Is(err, domain.ErrBadStateImport) {
		t.Errorf("Import(nil) error = %v, want ErrBadStateImport", err)
	}
}

func TestDocumentSupersession(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := testEngine(t, now)

	first := addDoc(t, e, rawDoc("insurance", "ins-2023.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, -30),
	}))
	second := addDoc(t, e, rawDoc("insurance", "ins-2024.pdf", 95, map[string]any{
		"vin":             testVIN,
		"expiration_date": isoDaysFromNow(now, 335),
	}))

	v, _ := e.GetVehicle(testVIN)
	if got := v.Documents[first.DocumentID].Status; got != domain.DocSuperseded {
		t.Errorf("old document status = %s, want superseded", got)
	}
	if got := v.Documents[second.DocumentID].Status; got != domain.DocActive {
		t.Errorf("new document status = %s, want active", got)
	}
	// The category follows the newest document.
	if v.Compliance[domain.CatInsurance].CurrentDocument != second.DocumentID {
		t.Errorf("current document = %s, want %s",
			v.Compliance[domain.CatInsurance].CurrentDocument, second.DocumentID)
	}
	if v.Compliance[domain.CatInsurance].Status != domain.StateCurrent {
		t.Errorf("insurance status = %s, want current", v.Compliance[domain.CatInsurance].Status)
	}
}
