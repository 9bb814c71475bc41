package audio

// DefaultPointer is the selected default device of one category.
//
// When Dummy is set no valid default exists and Index is meaningless; the next
// Added record of the category becomes the default.
type DefaultPointer struct {
	Index uint32 `json:"index"`
	Dummy bool   `json:"dummy"`
}

// membership answers whether an index is present in a category's store.
type membership interface {
	Contains(index uint32) bool
	Indices() []uint32
}

// DefaultTracker holds the default sink and source pointers.
//
// Only CategorySink and CategorySource are tracked; calls for other categories
// are no-ops. A tracked pointer starts out dummy.
//
// Thread Safety:
//   - Not safe for concurrent use. Owned by the Processor goroutine.
type DefaultTracker struct {
	pointers map[Category]DefaultPointer
}

// NewDefaultTracker creates a tracker with both pointers flagged dummy.
func NewDefaultTracker() *DefaultTracker {
	return &DefaultTracker{
		pointers: map[Category]DefaultPointer{
			CategorySink:   {Dummy: true},
			CategorySource: {Dummy: true},
		},
	}
}

// Get returns the pointer for category.
func (t *DefaultTracker) Get(category Category) (DefaultPointer, bool) {
	p, ok := t.pointers[category]
	return p, ok
}

// Select makes index the default for category iff index is a member.
//
// Returns:
//   - bool: true if the pointer changed
func (t *DefaultTracker) Select(category Category, index uint32, members membership) bool {
	cur, ok := t.pointers[category]
	if !ok || !members.Contains(index) {
		return false
	}
	next := DefaultPointer{Index: index}
	if cur == next {
		return false
	}
	t.pointers[category] = next
	return true
}

// OnRemoved repairs the pointer after index was removed from members.
// members must already reflect the removal.
func (t *DefaultTracker) OnRemoved(category Category, index uint32, members membership) bool {
	cur, ok := t.pointers[category]
	if !ok || cur.Dummy || cur.Index != index {
		return false
	}
	remaining := members.Indices()
	if len(remaining) == 0 {
		t.pointers[category] = DefaultPointer{Dummy: true}
		return true
	}
	t.pointers[category] = DefaultPointer{Index: remaining[0]}
	return true
}

// OnAdded adopts index as the default when the category is flagged dummy.
// A valid default is sticky and is left unchanged.
func (t *DefaultTracker) OnAdded(category Category, index uint32) bool {
	cur, ok := t.pointers[category]
	if !ok || !cur.Dummy {
		return false
	}
	t.pointers[category] = DefaultPointer{Index: index}
	return true
}

// Reset rebuilds the pointer after a full listing. The reported default is
// adopted when found and a member, otherwise any member, otherwise dummy.
func (t *DefaultTracker) Reset(category Category, reported uint32, found bool, members membership) {
	if _, ok := t.pointers[category]; !ok {
		return
	}
	if found && members.Contains(reported) {
		t.pointers[category] = DefaultPointer{Index: reported}
		return
	}
	if idx := members.Indices(); len(idx) > 0 {
		t.pointers[category] = DefaultPointer{Index: idx[0]}
		return
	}
	t.pointers[category] = DefaultPointer{Dummy: true}
}
