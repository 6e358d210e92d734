package relate

import "sort"

// PersistenceState tracks where an entity stands in its storage lifecycle.
type PersistenceState string

const (
	StateNew       PersistenceState = "new"
	StatePersisted PersistenceState = "persisted"
	StateDeleted   PersistenceState = "deleted"
)

// Entity is one materialized table row: a copy of column values keyed by
// field name, a dirty flag per field, and a persistence state. Entities are
// owned by the caller and are not safe for concurrent mutation; the
// materializer is merely their factory.
type Entity struct {
	entityType string
	values     map[string]any
	dirty      map[string]bool
	state      PersistenceState
	loaded     map[string]any
}

// NewEntity returns an unpersisted entity of the given type.
func NewEntity(entityType string) *Entity {
	return &Entity{
		entityType: entityType,
		values:     make(map[string]any),
		dirty:      make(map[string]bool),
		state:      StateNew,
	}
}

// Type returns the concrete entity type, which for single-table rows is the
// variant the discriminator resolved to, not the queried base type.
func (e *Entity) Type() string {
	return e.entityType
}

// Get returns the value of a field, or nil when unset.
func (e *Entity) Get(field string) any {
	return e.values[field]
}

// Set assigns a field value and marks the field dirty. Dirty flags clear on
// successful persistence.
func (e *Entity) Set(field string, value any) {
	e.values[field] = value
	e.dirty[field] = true
}

// IsDirty reports whether the field changed since the last persistence.
func (e *Entity) IsDirty(field string) bool {
	return e.dirty[field]
}

// DirtyFields returns the changed field names, sorted.
func (e *Entity) DirtyFields() []string {
	fields := make([]string, 0, len(e.dirty))
	for f := range e.dirty {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// State returns the entity's persistence state.
func (e *Entity) State() PersistenceState {
	return e.state
}

// Loaded returns an eager-loaded association result: a []*Entity for
// collection kinds, a *Entity for singular kinds. ok is false when the
// association was not eager loaded.
func (e *Entity) Loaded(name string) (any, bool) {
	v, ok := e.loaded[name]
	return v, ok
}

// LoadedMany returns an eager-loaded collection association.
func (e *Entity) LoadedMany(name string) []*Entity {
	if v, ok := e.loaded[name]; ok {
		if many, ok := v.([]*Entity); ok {
			return many
		}
	}
	return nil
}

// LoadedOne returns an eager-loaded singular association.
func (e *Entity) LoadedOne(name string) *Entity {
	if v, ok := e.loaded[name]; ok {
		if one, ok := v.(*Entity); ok {
			return one
		}
	}
	return nil
}

func (e *Entity) attachLoaded(name string, result any) {
	if e.loaded == nil {
		e.loaded = make(map[string]any)
	}
	e.loaded[name] = result
}

// markPersisted transitions the entity to the persisted state and clears
// every dirty flag.
func (e *Entity) markPersisted() {
	e.state = StatePersisted
	e.dirty = make(map[string]bool)
}

// markDeleted transitions the entity to the deleted state.
func (e *Entity) markDeleted() {
	e.state = StateDeleted
}

// setQuiet assigns a field value without touching dirty flags; the
// materializer uses it when copying row values in.
func (e *Entity) setQuiet(field string, value any) {
	e.values[field] = value
}
