package persona

// Store exposes persona retrieval for handlers and the orchestrator.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice. It is read-only after construction.
type MemoryStore struct {
	items []Persona
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	copied := make([]Persona, len(items))
	for i, item := range items {
		item.SecondaryObjections = append([]string(nil), item.SecondaryObjections...)
		copied[i] = item
	}

	index := make(map[string]int, len(copied))
	for i, item := range copied {
		index[item.ID] = i
	}
	return &MemoryStore{items: copied, index: index}
}

// List returns the configured persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	i, ok := s.index[id]
	if !ok {
		return Persona{}, false
	}
	return s.items[i], true
}
