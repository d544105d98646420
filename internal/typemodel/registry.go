package typemodel

// ArenaKey identifies a per-value field listing: the fields of TypeID when
// the subobject sits BaseOffset bytes into an object of type Root.
type ArenaKey struct {
	Root       string
	TypeID     string
	BaseOffset int64
}

// Registry caches resolved types for one debugger session. Each type ID is
// registered at most once.
type Registry struct {
	types map[string]*Type
	arena map[ArenaKey][]Field

	registrations int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*Type),
		arena: make(map[ArenaKey][]Field),
	}
}

// Lookup returns the cached type for id.
func (r *Registry) Lookup(id string) (*Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// Register caches t under t.ID and returns the cached instance. If the ID
// is already present the existing type wins and t is discarded.
func (r *Registry) Register(t *Type) *Type {
	if have, ok := r.types[t.ID]; ok {
		return have
	}
	r.types[t.ID] = t
	r.registrations++
	return t
}

// Len returns the number of cached types.
func (r *Registry) Len() int {
	return len(r.types)
}

// Registrations counts successful Register calls over the registry's life.
func (r *Registry) Registrations() int {
	return r.registrations
}

// DeepFields returns a stored per-value field listing.
func (r *Registry) DeepFields(key ArenaKey) ([]Field, bool) {
	f, ok := r.arena[key]
	return f, ok
}

// StoreDeepFields records a per-value field listing.
func (r *Registry) StoreDeepFields(key ArenaKey, fields []Field) {
	r.arena[key] = fields
}

// ArenaLen returns the number of stored listings.
func (r *Registry) ArenaLen() int {
	return len(r.arena)
}
