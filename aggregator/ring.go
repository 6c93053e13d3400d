package aggregator

// recentLog is a fixed-capacity circular buffer read newest first.
// Callers hold the aggregator lock.
type recentLog[T any] struct {
	entries  []T
	capacity int
	head     int // index where the next write goes
}

func newRecentLog[T any](capacity int) *recentLog[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &recentLog[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push adds entry, overwriting the oldest once the log is full.
func (r *recentLog[T]) Push(entry T) {
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, entry)
	} else {
		r.entries[r.head] = entry
	}
	r.head = (r.head + 1) % r.capacity
}

func (r *recentLog[T]) Len() int { return len(r.entries) }

// Items returns a copy, newest first.
func (r *recentLog[T]) Items() []T {
	n := len(r.entries)
	out := make([]T, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.entries[(r.head-i+r.capacity)%r.capacity])
	}
	return out
}

func (r *recentLog[T]) Clear() {
	r.entries = r.entries[:0]
	r.head = 0
}
