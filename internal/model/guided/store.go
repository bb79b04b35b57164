package guided

// Store exposes guided session definitions by type.
type Store interface {
	List() []Definition
	FindByType(sessionType string) (*Definition, bool)
}

// MemoryStore implements Store over a fixed slice of definitions.
type MemoryStore struct {
	items []Definition
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied definitions.
func NewMemoryStore(items []Definition) *MemoryStore {
	return &MemoryStore{items: append([]Definition(nil), items...)}
}

// List returns the authored definitions.
func (s *MemoryStore) List() []Definition {
	return append([]Definition(nil), s.items...)
}

// FindByType looks up a definition. The returned pointer must not be mutated.
func (s *MemoryStore) FindByType(sessionType string) (*Definition, bool) {
	for i := range s.items {
		if s.items[i].Type == sessionType {
			return &s.items[i], true
		}
	}
	return nil, false
}

// HighInteractivityTypes lists the definition types routed to realtime mode.
func HighInteractivityTypes(store Store) []string {
	var types []string
	for _, def := range store.List() {
		if def.HighInteractivity {
			types = append(types, def.Type)
		}
	}
	return types
}
