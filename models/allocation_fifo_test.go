package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func fifoBatch(id int, code string, remaining int64) *Batch {
	return &Batch{
		ID:                id,
		InstanceCode:      code,
		RemainingQuantity: decimal.NewFromInt(remaining),
		Status:            BatchStatusInStock,
	}
}

func TestAllocateFIFOGreedyAcrossBatches(t *testing.T) {
	batches := []*Batch{
		fifoBatch(1, "A", 15),
		fifoBatch(2, "B", 10),
		fifoBatch(3, "C", 30),
	}

	entries, allocated := allocateFIFO(batches, decimal.NewFromInt(22))
	if allocated.Cmp(decimal.NewFromInt(22)) != 0 {
		t.Fatalf("expected allocated=22; got %s", allocated)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries; got %d: %+v", len(entries), entries)
	}
	if entries[0].BatchId != 1 || entries[0].QuantityDeducted.Cmp(decimal.NewFromInt(15)) != 0 {
		t.Fatalf("expected first entry {batch 1, qty 15}; got %+v", entries[0])
	}
	if entries[1].BatchId != 2 || entries[1].QuantityDeducted.Cmp(decimal.NewFromInt(7)) != 0 {
		t.Fatalf("expected second entry {batch 2, qty 7}; got %+v", entries[1])
	}
}

func TestAllocateFIFOShortfall(t *testing.T) {
	batches := []*Batch{
		fifoBatch(1, "A", 5),
		fifoBatch(2, "B", 3),
	}

	entries, allocated := allocateFIFO(batches, decimal.NewFromInt(20))
	if allocated.Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("expected allocated=8; got %s", allocated)
	}
	if len(entries) != 2 {
		t.Fatalf("expected partial entries over both batches; got %+v", entries)
	}
}

func TestAllocateFIFOSkipsNonPositiveRemaining(t *testing.T) {
	batches := []*Batch{
		fifoBatch(1, "A", 0),
		fifoBatch(2, "B", 10),
	}

	entries, allocated := allocateFIFO(batches, decimal.NewFromInt(4))
	if allocated.Cmp(decimal.NewFromInt(4)) != 0 {
		t.Fatalf("expected allocated=4; got %s", allocated)
	}
	if len(entries) != 1 || entries[0].BatchId != 2 {
		t.Fatalf("expected single entry on batch 2; got %+v", entries)
	}
}

func TestAllocateFIFOToleranceStopsTinyResidue(t *testing.T) {
	batches := []*Batch{
		fifoBatch(1, "A", 10),
		fifoBatch(2, "B", 10),
	}

	// residue below tolerance must not open a second entry
	required := decimal.NewFromInt(10).Add(decimal.NewFromFloat(0.0005))
	entries, _ := allocateFIFO(batches, required)
	if len(entries) != 1 {
		t.Fatalf("expected residue within tolerance to be ignored; got %+v", entries)
	}
}

func TestAllocateFIFODoesNotMutateBatches(t *testing.T) {
	batches := []*Batch{fifoBatch(1, "A", 15)}

	allocateFIFO(batches, decimal.NewFromInt(10))
	allocateFIFO(batches, decimal.NewFromInt(10))
	if batches[0].RemainingQuantity.Cmp(decimal.NewFromInt(15)) != 0 {
		t.Fatalf("proposal must not mutate remaining quantity; got %s", batches[0].RemainingQuantity)
	}
}

func TestDeriveStatusNeverRevivesTerminalBatches(t *testing.T) {
	b := fifoBatch(1, "A", 50)
	b.Status = BatchStatusTransferred
	b.deriveStatus()
	if b.Status != BatchStatusTransferred {
		t.Fatalf("transferred batch must stay transferred; got %s", b.Status)
	}

	b = fifoBatch(2, "B", 0)
	b.deriveStatus()
	if b.Status != BatchStatusDepleted {
		t.Fatalf("zero remaining must derive Depleted; got %s", b.Status)
	}

	b = fifoBatch(3, "C", 0)
	b.RemainingQuantity = decimal.NewFromFloat(0.0009)
	b.deriveStatus()
	if b.Status != BatchStatusDepleted {
		t.Fatalf("remaining within tolerance must derive Depleted; got %s", b.Status)
	}
}
