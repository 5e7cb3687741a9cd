package event

// seenSet remembers the last capacity event ids, evicting the oldest once
// full. Not safe for concurrent use; the applier serializes access.
type seenSet struct {
	capacity int
	order    []string
	next     int
	ids      map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		order:    make([]string, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

func (s *seenSet) Contains(id string) bool {
	_, found := s.ids[id]
	return found
}

func (s *seenSet) Add(id string) {
	if _, found := s.ids[id]; found {
		return
	}

	if evicted := s.order[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}

	s.order[s.next] = id
	s.next = (s.next + 1) % s.capacity
	s.ids[id] = struct{}{}
}
