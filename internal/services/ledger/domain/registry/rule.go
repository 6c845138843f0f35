package registry

// View is the read access a Rule gets while an append is in flight. It
// reflects every committed record and nothing of the candidate.
type View[P Payload[P]] interface {
	// ListBy returns copies of the records whose index key matches.
	ListBy(index, key string) ([]Record[P], error)
	// Len returns the number of committed records.
	Len() int
}

// Rule checks a candidate record against committed state. A non-nil error
// rejects the append and leaves the registry untouched.
type Rule[P Payload[P]] interface {
	Check(view View[P], candidate Record[P]) error
}

// RuleFunc adapts a function to a Rule.
type RuleFunc[P Payload[P]] func(view View[P], candidate Record[P]) error

// Check calls f.
func (f RuleFunc[P]) Check(view View[P], candidate Record[P]) error {
	return f(view, candidate)
}

// lockedView serves rules from inside the append critical section, so it
// reads registry state without taking the lock again.
type lockedView[P Payload[P]] struct {
	r *Registry[P]
}

func (v lockedView[P]) ListBy(index, key string) ([]Record[P], error) {
	return v.r.listByLocked(index, key)
}

func (v lockedView[P]) Len() int {
	return len(v.r.records)
}
