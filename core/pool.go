package core

// pool.go implements a fixed-capacity typed object pool with a free list.
// The scheduler's Pool[VU] (core/scheduler.go) is sized to max_vus and
// backs every spawned VU's storage; StubHandler's Pool[struct{}]
// (core/handler.go) is sized to its connection limit and enforces it via
// Acquire/Release instead of a map-length check.

// Pool is a fixed-capacity collection of N elements of type T, handed out by
// index via a free list. Elements are neither zeroed nor constructed between
// acquisitions: whatever the previous holder left behind is still there.
type Pool[T any] struct {
	items     []T
	freeList  []int32
	acquired  []bool
	freeCount int
}

// NewPool constructs a pool with capacity n. n must be > 0.
func NewPool[T any](n int) *Pool[T] {
	if n <= 0 {
		panic("pool: capacity must be > 0")
	}
	p := &Pool[T]{
		items:    make([]T, n),
		freeList: make([]int32, n),
		acquired: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		p.freeList[i] = int32(n - 1 - i)
	}
	p.freeCount = n
	return p
}

// Handle identifies one element of a Pool by index. It is only valid for the
// Pool that issued it.
type Handle int32

// Acquire returns an exclusive handle to one free element, or ErrPoolExhausted
// if none remain.
func (p *Pool[T]) Acquire() (Handle, error) {
	if p.freeCount == 0 {
		return 0, ErrPoolExhausted
	}
	p.freeCount--
	idx := p.freeList[p.freeCount]
	p.acquired[idx] = true
	return Handle(idx), nil
}

// Get returns a pointer to the element identified by h. The caller must only
// call this while h is held (between Acquire and Release).
func (p *Pool[T]) Get(h Handle) *T {
	return &p.items[int(h)]
}

// Release returns h to the free list. Releasing a handle that is not
// currently acquired is an invariant violation: the contract requires callers
// to track their own handle lifetimes, and double-release corrupts the free
// list silently if left unchecked. z6sim always traps it.
func (p *Pool[T]) Release(h Handle) {
	idx := int(h)
	if !p.acquired[idx] {
		panic("pool: double release")
	}
	p.acquired[idx] = false
	p.freeList[p.freeCount] = int32(idx)
	p.freeCount++
}

// FreeCount returns the number of elements currently available to Acquire.
func (p *Pool[T]) FreeCount() int { return p.freeCount }

// Cap returns the pool's fixed capacity N.
func (p *Pool[T]) Cap() int { return len(p.items) }
