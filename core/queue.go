package core

import "container/heap"

// queue.go implements the bounded event queue (component D): a min-heap
// keyed by (fire_tick, insertion_sequence) so pops emerge in non-decreasing
// tick order with ties broken FIFO. Entries are scheduler-internal and are
// never persisted to the ledger.

// EventKind distinguishes the three dispatch cases the scheduler's step 1
// handles: scheduled spawns, timeout firings, and scheduled retries.
type EventKind uint8

const (
	EventSpawn EventKind = iota
	EventTimeout
	EventRetry
)

// Event is one scheduled queue entry.
type Event struct {
	VUID      uint32
	Kind      EventKind
	RequestID uint64 // meaningful for EventTimeout
}

type queueItem struct {
	fireTick uint64
	seq      uint64
	event    Event
}

// eventHeap implements container/heap.Interface, ordered by (fireTick, seq).
type eventHeap []queueItem

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].fireTick != h[j].fireTick {
		return h[i].fireTick < h[j].fireTick
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(queueItem)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is a bounded-capacity min-heap of scheduled events.
type EventQueue struct {
	capacity int
	nextSeq  uint64
	h        eventHeap
}

// NewEventQueue constructs a queue bounded at capacity entries.
func NewEventQueue(capacity int) *EventQueue {
	q := &EventQueue{capacity: capacity}
	heap.Init(&q.h)
	return q
}

// Push inserts event to fire at fireTick. It fails with ErrQueueFull once
// Len() reaches the configured capacity. Complexity O(log n).
func (q *EventQueue) Push(fireTick uint64, event Event) error {
	if len(q.h) >= q.capacity {
		return ErrQueueFull
	}
	heap.Push(&q.h, queueItem{fireTick: fireTick, seq: q.nextSeq, event: event})
	q.nextSeq++
	return nil
}

// Peek returns the head of the queue — the entry with the lowest
// (fire_tick, insertion_sequence) — without removing it. O(1).
func (q *EventQueue) Peek() (fireTick uint64, event Event, err error) {
	if len(q.h) == 0 {
		return 0, Event{}, ErrQueueEmpty
	}
	top := q.h[0]
	return top.fireTick, top.event, nil
}

// Pop removes and returns the head of the queue. O(log n).
func (q *EventQueue) Pop() (fireTick uint64, event Event, err error) {
	if len(q.h) == 0 {
		return 0, Event{}, ErrQueueEmpty
	}
	item := heap.Pop(&q.h).(queueItem)
	return item.fireTick, item.event, nil
}

// Len returns the number of entries currently queued.
func (q *EventQueue) Len() int { return len(q.h) }

// Cap returns the queue's fixed capacity.
func (q *EventQueue) Cap() int { return q.capacity }
