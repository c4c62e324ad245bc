package memory

import "testing"

func TestBuddyAllocSplitsAndFits(t *testing.T) {
	b, err := NewBuddyAllocator(4096, 256)
	if err != nil {
		t.Fatal(err)
	}

	a, err := b.Alloc(300)
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 512 {
		t.Fatalf("Size = %d, want 512 (next power of 2 >= 300)", a.Size)
	}

	c, err := b.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	if c.Offset == a.Offset {
		t.Fatal("two live allocations must not overlap")
	}
}

func TestBuddyFreeMergesBuddies(t *testing.T) {
	b, err := NewBuddyAllocator(1024, 256)
	if err != nil {
		t.Fatal(err)
	}

	blocks := make([]BuddyBlock, 4)
	for i := range blocks {
		blk, err := b.Alloc(256)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		blocks[i] = blk
	}
	if _, err := b.Alloc(256); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory once exhausted, got %v", err)
	}

	for _, blk := range blocks {
		if err := b.Free(blk); err != nil {
			t.Fatal(err)
		}
	}

	// fully merged back to one 1024-byte block.
	whole, err := b.Alloc(1024)
	if err != nil {
		t.Fatalf("expected full region available after merge, got %v", err)
	}
	if whole.Size != 1024 {
		t.Fatalf("Size = %d, want 1024", whole.Size)
	}
}

func TestBuddyDoubleFreeRejected(t *testing.T) {
	b, err := NewBuddyAllocator(1024, 256)
	if err != nil {
		t.Fatal(err)
	}
	blk, err := b.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Free(blk); err != nil {
		t.Fatal(err)
	}
	if err := b.Free(blk); err != ErrDoubleFree {
		t.Fatalf("second Free() = %v, want ErrDoubleFree", err)
	}
}

func TestNewBuddyAllocatorRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewBuddyAllocator(1000, 256); err != ErrInvalidConfig {
		t.Fatalf("totalSize error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewBuddyAllocator(1024, 300); err != ErrInvalidConfig {
		t.Fatalf("minBlockSize error = %v, want ErrInvalidConfig", err)
	}
}

func TestBuddyAllocRejectsOversizedRequest(t *testing.T) {
	b, err := NewBuddyAllocator(1024, 256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Alloc(2048); err != ErrInvalidSize {
		t.Fatalf("Alloc(2048) error = %v, want ErrInvalidSize", err)
	}
}
