package core

import "testing"

func TestPRNGReproducibility(t *testing.T) {
	a := NewPRNG(42)
	b := NewPRNG(42)
	for i := 0; i < 1000; i++ {
		va, vb := a.Next(), b.Next()
		if va != vb {
			t.Fatalf("sequence diverged at %d: %d != %d", i, va, vb)
		}
	}
}

func TestPRNGDifferentSeedsDiverge(t *testing.T) {
	a := NewPRNG(1)
	b := NewPRNG(2)
	same := true
	for i := 0; i < 8; i++ {
		if a.Next() != b.Next() {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected seeds 1 and 2 to diverge within 8 draws")
	}
}

func TestPRNGZeroSeedDoesNotAliasMixingConstant(t *testing.T) {
	a := NewPRNG(0)
	b := NewPRNG(0x9E3779B97F4A7C15)
	same := true
	for i := 0; i < 8; i++ {
		if a.Next() != b.Next() {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("seed 0 aliased the splitmix64 mixing constant's stream")
	}
}

func TestPRNGRangeInvalid(t *testing.T) {
	p := NewPRNG(7)
	if _, err := p.Range(0); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestPRNGRangeOne(t *testing.T) {
	p := NewPRNG(7)
	for i := 0; i < 100; i++ {
		v, err := p.Range(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 0 {
			t.Fatalf("Range(1) returned %d, want 0", v)
		}
	}
}

func TestPRNGRangeBounded(t *testing.T) {
	p := NewPRNG(123)
	for i := 0; i < 10000; i++ {
		v, err := p.Range(7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v >= 7 {
			t.Fatalf("Range(7) returned %d, out of bounds", v)
		}
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	p := NewPRNG(9)
	s := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	orig := append([]int(nil), s...)
	Shuffle(p, s)

	seen := make(map[int]bool, len(s))
	for _, v := range s {
		seen[v] = true
	}
	for _, v := range orig {
		if !seen[v] {
			t.Fatalf("shuffle lost element %d", v)
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	a := make([]int, 50)
	b := make([]int, 50)
	for i := range a {
		a[i] = i
		b[i] = i
	}
	Shuffle(NewPRNG(55), a)
	Shuffle(NewPRNG(55), b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("shuffle at index %d diverged: %d != %d", i, a[i], b[i])
		}
	}
}
