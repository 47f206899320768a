package memorypool

import "testing"

func TestAttributeAllocatedDistributesProportionally(t *testing.T) {
	snapshots := []Snapshot{
		{ProviderID: "gpu0", TotalMB: 8000},
		{ProviderID: "gpu1", TotalMB: 2000},
	}
	out := AttributeAllocated(snapshots, 5000)
	if out[0].AllocatedMB != 4000 {
		t.Errorf("expected gpu0 share of 4000, got %d", out[0].AllocatedMB)
	}
	if out[1].AllocatedMB != 1000 {
		t.Errorf("expected gpu1 (last provider) to absorb the residue of 1000, got %d", out[1].AllocatedMB)
	}
}

func TestAttributeAllocatedClampsPerProvider(t *testing.T) {
	snapshots := []Snapshot{
		{ProviderID: "gpu0", TotalMB: 100},
		{ProviderID: "gpu1", TotalMB: 9900},
	}
	// Allocating 20000MB against a 10000MB grand total pushes the
	// allocated figure past what exists: gpu0's naive share would be 200,
	// twice its TotalMB, and the residue 19900 is over gpu1's 9900; confirm
	// no provider is ever handed more than its own TotalMB.
	out := AttributeAllocated(snapshots, 20000)
	for _, s := range out {
		if s.AllocatedMB > s.TotalMB {
			t.Errorf("provider %s allocated %d exceeds its total %d", s.ProviderID, s.AllocatedMB, s.TotalMB)
		}
	}
}

func TestAttributeAllocatedZeroTotalIsNoop(t *testing.T) {
	snapshots := []Snapshot{{ProviderID: "gpu0", TotalMB: 0}}
	out := AttributeAllocated(snapshots, 5000)
	if out[0].AllocatedMB != 0 {
		t.Errorf("expected no allocation against a zero-total provider, got %d", out[0].AllocatedMB)
	}
}

func TestAttributeAllocatedEmptySnapshots(t *testing.T) {
	out := AttributeAllocated(nil, 5000)
	if len(out) != 0 {
		t.Errorf("expected empty output for empty input, got %d entries", len(out))
	}
}

func TestAttributeAllocatedSingleProviderGetsEverything(t *testing.T) {
	snapshots := []Snapshot{{ProviderID: "gpu0", TotalMB: 4000}}
	out := AttributeAllocated(snapshots, 3000)
	if out[0].AllocatedMB != 3000 {
		t.Errorf("expected the sole provider to absorb the full allocated figure, got %d", out[0].AllocatedMB)
	}
}
