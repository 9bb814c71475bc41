package audio

import "sort"

// Store is an index-keyed collection of one entity category.
//
// Records are deep-copied on the way in and on the way out, so callers
// never alias the store's volume or profile slices.
//
// Thread Safety:
//   - Store is NOT safe for concurrent use. The Processor goroutine is its only
//     owner; other goroutines read registry state through Snapshot.
type Store[T Record[T]] struct {
	items map[uint32]T
}

// NewStore creates an empty store.
func NewStore[T Record[T]]() *Store[T] {
	return &Store[T]{items: make(map[uint32]T)}
}

// Upsert inserts the record or replaces the existing one with the same index.
// Applying the same record twice leaves the store unchanged.
func (s *Store[T]) Upsert(record T) {
	s.items[record.Key()] = record.DeepCopy()
}

// Remove deletes the record with the given index.
//
// Returns:
//   - bool: true if a record was present and removed, false if absent (no-op)
func (s *Store[T]) Remove(index uint32) bool {
	if _, ok := s.items[index]; !ok {
		return false
	}
	delete(s.items, index)
	return true
}

// Get returns a copy of the record with the given index.
func (s *Store[T]) Get(index uint32) (T, bool) {
	rec, ok := s.items[index]
	if !ok {
		var zero T
		return zero, false
	}
	return rec.DeepCopy(), true
}

// Contains reports whether a record with the given index is present.
func (s *Store[T]) Contains(index uint32) bool {
	_, ok := s.items[index]
	return ok
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	return len(s.items)
}

// List returns copies of all records ordered by index.
func (s *Store[T]) List() []T {
	out := make([]T, 0, len(s.items))
	for _, idx := range s.Indices() {
		out = append(out, s.items[idx].DeepCopy())
	}
	return out
}

// Indices returns all indices in ascending order.
func (s *Store[T]) Indices() []uint32 {
	keys := make([]uint32, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Replace discards the current contents and loads records instead.
// Later duplicates of an index win.
func (s *Store[T]) Replace(records []T) {
	s.items = make(map[uint32]T, len(records))
	for _, r := range records {
		s.items[r.Key()] = r.DeepCopy()
	}
}
