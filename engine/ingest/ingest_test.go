package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/engine/extract"
	"github.com/clearhaul/fleetcomply/engine/reconcile"
	"github.com/clearhaul/fleetcomply/pkg/metrics"
)

func testProcessor(reg *metrics.Registry) *Processor {
	return NewProcessor(Deps{
		Validator: extract.NewValidator(),
		Engine:    reconcile.New(nil),
		Metrics:   reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestProcessReconcilesDocument(t *testing.T) {
	reg := metrics.New()
	p := testProcessor(reg)

	conf := 95.0
	out, err := p.Process(context.Background(), &domain.RawExtraction{
		DocumentType: "insurance",
		FileName:     "policy.pdf",
		Confidence:   &conf,
		ExtractedData: map[string]any{
			"vin":             "1HGBH41JXMN109186",
			"expiration_date": "2027-03-15",
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Result.VehicleVIN != "1HGBH41JXMN109186" {
		t.Errorf("vin = %q", out.Result.VehicleVIN)
	}
	if out.Duplicate != nil {
		t.Errorf("unexpected duplicate: %+v", out.Duplicate)
	}
	if !strings.Contains(reg.Render(), `documents_processed_total{status="ok"} 1`) {
		t.Errorf("ok counter missing:\n%s", reg.Render())
	}
}

func TestProcessFailsWithoutVIN(t *testing.T) {
	reg := metrics.New()
	p := testProcessor(reg)

	conf := 90.0
	_, err := p.Process(context.Background(), &domain.RawExtraction{
		DocumentType:  "insurance",
		FileName:      "policy.pdf",
		Confidence:    &conf,
		ExtractedData: map[string]any{"policy_number": "POL-1"},
	})
	if !errors.Is(err, domain.ErrNoVIN) {
		t.Fatalf("err = %v, want ErrNoVIN", err)
	}
	if !strings.Contains(reg.Render(), `documents_processed_total{status="failed"} 1`) {
		t.Errorf("failed counter missing:\n%s", reg.Render())
	}
}

func TestProcessNilPayload(t *testing.T) {
	p := testProcessor(nil)
	if _, err := p.Process(context.Background(), nil); err == nil {
		t.Error("expected error for nil payload")
	}
}

func TestProcessWithoutOptionalDepsSkipsDedup(t *testing.T) {
	p := testProcessor(nil)
	conf := 95.0
	raw := &domain.RawExtraction{
		FileName:   "reg.pdf",
		Confidence: &conf,
		ExtractedData: map[string]any{
			"vin": "1HGBH41JXMN109186",
		},
		Text: "Vehicle Identification Number 1HGBH41JXMN109186",
	}
	out, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Duplicate != nil {
		t.Error("dedup should be skipped without embedder and index")
	}
}
