package core

import "testing"

func TestArenaAllocBump(t *testing.T) {
	a := NewArena(16)
	b1, err := a.Alloc(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b1) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(b1))
	}
	if a.Used() != 10 {
		t.Fatalf("expected offset 10, got %d", a.Used())
	}
	if _, err := a.Alloc(10); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestArenaResetDoesNotZero(t *testing.T) {
	a := NewArena(8)
	b, _ := a.Alloc(8)
	for i := range b {
		b[i] = 0xFF
	}
	a.Reset()
	if a.Used() != 0 {
		t.Fatalf("expected offset 0 after reset, got %d", a.Used())
	}
	b2, _ := a.Alloc(8)
	for i, v := range b2 {
		if v != 0xFF {
			t.Fatalf("expected reset to leave prior bytes intact at %d, got %x", i, v)
		}
	}
}

func TestArenaAllocAlignedRejectsNonPowerOfTwo(t *testing.T) {
	a := NewArena(64)
	if _, err := a.AllocAligned(4, 3); err != ErrInvalidAlignment {
		t.Fatalf("expected ErrInvalidAlignment, got %v", err)
	}
}

func TestArenaAllocAlignedAlignsOffset(t *testing.T) {
	a := NewArena(64)
	_, _ = a.Alloc(1)
	b, err := a.AllocAligned(8, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	if a.Used()%8 != 0 {
		t.Fatalf("expected aligned offset, got %d", a.Used())
	}
}

func TestArenaCapExactBoundary(t *testing.T) {
	a := NewArena(32)
	if _, err := a.Alloc(32); err != nil {
		t.Fatalf("allocating exactly the capacity should succeed: %v", err)
	}
	if _, err := a.Alloc(1); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory at the boundary, got %v", err)
	}
}
