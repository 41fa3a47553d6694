//go:build integration

package semantic

import (
	"context"
	"os"
	"testing"
	"time"
)

// Requires a running Qdrant; set QDRANT_URL or default to localhost:6334.
func TestNearDuplicateRoundTrip(t *testing.T) {
	addr := os.Getenv("QDRANT_URL")
	if addr == "" {
		addr = "localhost:6334"
	}

	idx, err := New(addr, "fleetcomply_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := idx.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	rec := DocumentVector{
		DocumentID:   "11111111-1111-1111-1111-111111111111",
		VIN:          "1HGBH41JXMN109186",
		DocumentType: "insurance",
		FileName:     "policy.pdf",
		Embedding:    vec,
	}
	if err := idx.Index(ctx, rec); err != nil {
		t.Fatalf("index: %v", err)
	}
	defer idx.Remove(ctx, rec.DocumentID)

	m, dup, err := idx.NearDuplicate(ctx, rec.VIN, vec)
	if err != nil {
		t.Fatalf("near duplicate: %v", err)
	}
	if !dup || m.DocumentID != rec.DocumentID {
		t.Errorf("identical vector should be a duplicate, got match=%+v dup=%v", m, dup)
	}

	// A different VIN must not match even with the same vector.
	if _, dup, _ := idx.NearDuplicate(ctx, "5YJSA1E26HF000337", vec); dup {
		t.Error("duplicate reported across different VINs")
	}
}
