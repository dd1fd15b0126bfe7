package api

import "sync"

// InspectionStore keeps the most recent inspections so clients can fetch a
// result again by ID. The oldest entry is evicted once capacity is reached.
type InspectionStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]Inspection
}

func NewInspectionStore(capacity int) *InspectionStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &InspectionStore{
		capacity: capacity,
		byID:     make(map[string]Inspection, capacity),
	}
}

func (s *InspectionStore) Put(in Inspection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[in.ID]; !ok {
		if len(s.order) == s.capacity {
			delete(s.byID, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, in.ID)
	}
	s.byID[in.ID] = in
}

func (s *InspectionStore) Get(id string) (Inspection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.byID[id]
	return in, ok
}

func (s *InspectionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
