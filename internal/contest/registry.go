package contest

// Registry is a dense, 1-indexed list of active participants with O(1)
// lookup, append and swap-remove. Slot 0 is never used.
type Registry struct {
	slots []ParticipantID
	index map[ParticipantID]int
}

func NewRegistry() *Registry {
	return &Registry{
		slots: []ParticipantID{""},
		index: make(map[ParticipantID]int),
	}
}

// IndexOf returns the 1-based slot of p, or 0 when p is not registered.
func (r *Registry) IndexOf(p ParticipantID) int {
	return r.index[p]
}

// Register appends p. Registering an existing participant is a no-op.
func (r *Registry) Register(p ParticipantID) int {
	if i, ok := r.index[p]; ok {
		return i
	}
	r.slots = append(r.slots, p)
	i := len(r.slots) - 1
	r.index[p] = i
	return i
}

// Unregister moves the last live participant into p's slot and shrinks the
// list by one.
func (r *Registry) Unregister(p ParticipantID) {
	i, ok := r.index[p]
	if !ok {
		return
	}
	last := len(r.slots) - 1
	if i != last {
		moved := r.slots[last]
		r.slots[i] = moved
		r.index[moved] = i
	}
	r.slots[last] = ""
	r.slots = r.slots[:last]
	delete(r.index, p)
}

// At returns the participant in slot i.
func (r *Registry) At(i int) (ParticipantID, error) {
	if i < 1 || i >= len(r.slots) {
		return "", ErrOutOfRange.WithDetails("index", i)
	}
	return r.slots[i], nil
}

func (r *Registry) Len() int {
	return len(r.slots) - 1
}

// Each visits participants in enumeration order until fn returns false.
func (r *Registry) Each(fn func(i int, p ParticipantID) bool) {
	for i := 1; i < len(r.slots); i++ {
		if !fn(i, r.slots[i]) {
			return
		}
	}
}
