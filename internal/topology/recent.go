package topology

// recentSet keeps the last capacity distinct values in insertion order.
// Re-adding a value already present moves it to the most recent slot.
type recentSet[T comparable] struct {
	capacity int
	items    []T
}

func newRecentSet[T comparable](capacity int) *recentSet[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &recentSet[T]{capacity: capacity, items: make([]T, 0, capacity)}
}

func (s *recentSet[T]) Add(v T) {
	for i, cur := range s.items {
		if cur == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	if len(s.items) == s.capacity {
		// oldest lives at index 0
		copy(s.items, s.items[1:])
		s.items = s.items[:len(s.items)-1]
	}
	s.items = append(s.items, v)
}

func (s *recentSet[T]) Contains(v T) bool {
	for _, cur := range s.items {
		if cur == v {
			return true
		}
	}
	return false
}

func (s *recentSet[T]) Len() int {
	return len(s.items)
}

// Values returns a copy ordered oldest first.
func (s *recentSet[T]) Values() []T {
	return append([]T(nil), s.items...)
}
