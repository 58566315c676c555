package dutysdk

import "sync"

// MutationState tracks where a single optimistic mutation sits in its
// lifecycle.
type MutationState int

const (
	// StatePristine: the mutation exists but no tentative change was applied.
	StatePristine MutationState = iota
	// StateTentative: a locally computed next state is showing.
	StateTentative
	// StateReconciled: the server's authoritative row has been merged in.
	StateReconciled
	// StateRolledBack: the pre-mutation snapshot was restored.
	StateRolledBack
)

// Collection is an optimistic cache of a client's duties. Mutations apply a
// tentative state immediately, then either reconcile with the server response
// or roll back to the exact pre-mutation snapshot. Every mutation bumps a
// generation counter; refreshes started before the bump are discarded as
// stale so they cannot overwrite an optimistic write.
type Collection struct {
	mu         sync.Mutex
	duties     []Duty
	generation uint64
}

// NewCollection seeds the cache with an initial authoritative listing.
func NewCollection(initial []Duty) *Collection {
	c := &Collection{}
	c.duties = cloneDuties(initial)
	return c
}

// Duties returns a copy of the current collection value.
func (c *Collection) Duties() []Duty {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneDuties(c.duties)
}

// Generation returns the token a refresh must present to be applied. Capture
// it before starting the fetch.
func (c *Collection) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Refresh installs an authoritative listing if no mutation superseded the
// fetch. Returns false when the refresh was stale and discarded.
func (c *Collection) Refresh(generation uint64, duties []Duty) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.duties = cloneDuties(duties)
	return true
}

// Mutation is one optimistic write against the collection.
type Mutation struct {
	c        *Collection
	snapshot []Duty
	state    MutationState
	tempID   string
}

// Begin starts a mutation: it supersedes any in-flight refresh (by bumping
// the generation) and snapshots the current value for rollback.
func (c *Collection) Begin() *Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return &Mutation{
		c:        c,
		snapshot: cloneDuties(c.duties),
		state:    StatePristine,
	}
}

// State reports the mutation's current phase.
func (m *Mutation) State() MutationState {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	return m.state
}

// Apply installs the tentative next state computed by fn from the current
// value. fn receives a copy and returns the full next listing.
func (m *Mutation) Apply(fn func(duties []Duty) []Duty) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.duties = fn(cloneDuties(m.c.duties))
	m.state = StateTentative
}

// ApplyCreate inserts a placeholder row under a temporary id. On Succeed the
// placeholder is replaced by the authoritative row.
func (m *Mutation) ApplyCreate(tempID string, placeholder Duty) {
	placeholder.ID = tempID
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.tempID = tempID
	m.c.duties = append([]Duty{placeholder}, m.c.duties...)
	m.state = StateTentative
}

// ApplyUpdate flips fields on the duty with the given id.
func (m *Mutation) ApplyUpdate(dutyID string, fn func(d Duty) Duty) {
	m.Apply(func(duties []Duty) []Duty {
		for i, d := range duties {
			if d.ID == dutyID {
				duties[i] = fn(d)
			}
		}
		return duties
	})
}

// Fail restores the pre-mutation snapshot exactly. The collection never keeps
// a partial merge of a failed write.
func (m *Mutation) Fail() {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.duties = cloneDuties(m.snapshot)
	m.state = StateRolledBack
}

// Succeed merges the server's authoritative row. For creates, the placeholder
// inserted under the temporary id is replaced; otherwise the row is matched
// by its real id (appended if absent).
func (m *Mutation) Succeed(authoritative Duty) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	matchID := m.tempID
	if matchID == "" {
		matchID = authoritative.ID
	}
	replaced := false
	for i, d := range m.c.duties {
		if d.ID == matchID {
			m.c.duties[i] = authoritative
			replaced = true
			break
		}
	}
	if !replaced {
		m.c.duties = append(m.c.duties, authoritative)
	}
	m.state = StateReconciled
}

func cloneDuties(in []Duty) []Duty {
	if in == nil {
		return nil
	}
	out := make([]Duty, len(in))
	copy(out, in)
	return out
}
