package memory

import (
	"sync"
	"testing"
)

func TestAlignUpAlignDown(t *testing.T) {
	cases := []struct{ addr, align, up, down uintptr }{
		{0, 16, 0, 0},
		{1, 16, 16, 0},
		{16, 16, 16, 16},
		{17, 16, 32, 16},
		{4095, 4096, 4096, 0},
		{4096, 4096, 4096, 4096},
	}
	for _, c := range cases {
		if got := AlignUp(c.addr, c.align); got != c.up {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.addr, c.align, got, c.up)
		}
		if got := AlignDown(c.addr, c.align); got != c.down {
			t.Errorf("AlignDown(%d, %d) = %d, want %d", c.addr, c.align, got, c.down)
		}
	}
}

func TestAlignPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two alignment")
		}
	}()
	AlignUp(10, 3)
}

func TestAllocLinearAndExhausted(t *testing.T) {
	a := New(0x1000, 64)

	p1 := a.Alloc(16, 8)
	if p1 != 0x1000 {
		t.Fatalf("p1 = %#x, want %#x", p1, 0x1000)
	}
	p2 := a.Alloc(16, 8)
	if p2 != 0x1010 {
		t.Fatalf("p2 = %#x, want %#x", p2, 0x1010)
	}

	// Ask for more than remains: should fail cleanly, not wrap or overlap.
	if got := a.Alloc(1000, 8); got != 0 {
		t.Fatalf("Alloc() = %#x, want 0 on exhaustion", got)
	}
}

func TestAllocRespectsAlignment(t *testing.T) {
	a := New(0x1001, 4096)
	p := a.Alloc(8, 16)
	if p%16 != 0 {
		t.Fatalf("Alloc() = %#x, not 16-byte aligned", p)
	}
}

func TestAllocConcurrentNeverOverlaps(t *testing.T) {
	const (
		n    = 200
		size = 32
	)
	a := New(0x1000, n*size)

	results := make([]uintptr, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Alloc(size, 8)
		}(i)
	}
	wg.Wait()

	seen := make(map[uintptr]bool, n)
	for _, addr := range results {
		if addr == 0 {
			t.Fatal("Alloc() returned 0 under concurrent load that should have fit")
		}
		if seen[addr] {
			t.Fatalf("two goroutines received overlapping address %#x", addr)
		}
		seen[addr] = true
	}
}

func TestNewChildCarvesDisjointRegion(t *testing.T) {
	parent := New(0x2000, 0x10000)
	c1 := NewChild(parent, 256)
	c2 := NewChild(parent, 256)

	if c1.start == c2.start {
		t.Fatal("two children received the same base address")
	}
	if c1.Alloc(1, 1) < c1.start || c1.Alloc(1, 1) >= c1.end {
		t.Fatal("child allocator issued an address outside its own region")
	}
}

func TestNewChildPanicsWhenParentExhausted(t *testing.T) {
	parent := New(0x3000, 16)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when parent cannot satisfy child region")
		}
	}()
	NewChild(parent, 1024)
}
