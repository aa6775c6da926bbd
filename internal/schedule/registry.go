package schedule

import (
	"sort"
	"time"
)

// loader loads schedule definitions.
type loader interface {
	Load(id string) (*Definition, error)
}

// Entry is an active schedule.
type Entry struct {
	Definition
	LoadedAt time.Time
}

// Registry is the daemon's set of active schedules.
//
// A Registry is owned by the daemon's reactor goroutine and is not safe for
// concurrent use.
type Registry struct {
	store  loader
	active map[string]*Entry
	now    func() time.Time
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store loader) *Registry {
	return &Registry{
		store:  store,
		active: make(map[string]*Entry),
		now:    time.Now,
	}
}

// Reload (re)reads the definition for id and makes it active. It returns
// true if the schedule replaced an existing entry. A disabled definition is
// removed from the active set and reported as a DisabledError.
func (r *Registry) Reload(id string) (replaced bool, err error) {
	d, err := r.store.Load(id)
	if err != nil {
		return false, err
	}
	_, replaced = r.active[id]
	if !d.IsEnabled() {
		delete(r.active, id)
		return replaced, &DisabledError{ID: id}
	}
	r.active[id] = &Entry{Definition: *d, LoadedAt: r.now()}
	return replaced, nil
}

// Cancel removes id from the active set. It returns a NotFoundError if the
// schedule was not active.
func (r *Registry) Cancel(id string) error {
	if _, ok := r.active[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.active, id)
	return nil
}

// Get returns the active entry for id.
func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.active[id]
	return e, ok
}

// Active returns the ids of all active schedules, sorted.
func (r *Registry) Active() []string {
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
