package manifest

import "testing"

func TestManifest_AppendChainsHashes(t *testing.T) {
	m := New("example.txt")

	hash1, err := m.Append("chunkhash1", 100, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Append("chunkhash2", 200, &hash1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(m.Chain) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(m.Chain))
	}
	if m.Chain[0].PreviousHash != nil {
		t.Error("first block should have a nil previous_hash")
	}
	if m.Chain[1].PreviousHash == nil || *m.Chain[1].PreviousHash != hash1 {
		t.Error("second block's previous_hash should equal the first block's own hash")
	}
	if m.TotalSize != 300 {
		t.Errorf("TotalSize = %d, want 300", m.TotalSize)
	}
}

func TestManifest_MarshalUnmarshalRoundTrip(t *testing.T) {
	m := New("round-trip.bin")
	hash1, err := m.Append("c1", 10, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Append("c2", 20, &hash1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if restored.Filename != m.Filename || restored.TotalSize != m.TotalSize {
		t.Error("round-tripped manifest fields don't match")
	}
	if len(restored.Chain) != len(m.Chain) {
		t.Fatalf("chain length changed across round trip")
	}
	if err := restored.Validate(); err != nil {
		t.Errorf("round-tripped manifest failed validation: %v", err)
	}
}

func TestManifest_ValidateDetectsTampering(t *testing.T) {
	m := New("tampered.bin")
	hash1, err := m.Append("c1", 10, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Append("c2", 20, &hash1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := m.Validate(); err != nil {
		t.Fatalf("untampered chain should validate: %v", err)
	}

	// Swap in a different chunk hash for the first block without
	// updating the second block's previous_hash — the chain should now
	// fail validation.
	m.Chain[0].ChunkHash = "swapped-hash"
	if err := m.Validate(); err == nil {
		t.Error("expected Validate to detect a tampered chain")
	}
}

func TestManifest_ChunkHashesPreservesOrder(t *testing.T) {
	m := New("ordered.bin")
	hash1, _ := m.Append("c1", 10, nil)
	hash2, _ := m.Append("c2", 20, &hash1)
	m.Append("c3", 30, &hash2)

	hashes := m.ChunkHashes()
	want := []string{"c1", "c2", "c3"}
	if len(hashes) != len(want) {
		t.Fatalf("got %d hashes, want %d", len(hashes), len(want))
	}
	for i, h := range want {
		if hashes[i] != h {
			t.Errorf("hash %d = %q, want %q", i, hashes[i], h)
		}
	}
}

func TestManifest_EmptyChainValidates(t *testing.T) {
	m := New("empty.bin")
	if err := m.Validate(); err != nil {
		t.Errorf("empty chain should validate trivially: %v", err)
	}
}
