package metadata

import "sync"

// Well-known metadata keys. Annotation mechanisms (code generation,
// manual registration, embedding) all funnel through these.
const (
	KeyController = "maestro:controller"
	KeyMethods    = "maestro:methods"
)

// MetadataStore is the injected annotation capability: per-target
// key/value metadata. The discovery registry depends only on this
// interface, never on a particular annotation mechanism.
type MetadataStore interface {
	Get(target any, key string) (any, bool)
	Set(target any, key string, value any)
}

// ControllerProvider supplies the controller instances to scan. Wiring
// containers implement this; tests pass a static slice.
type ControllerProvider interface {
	Controllers() []any
}

// StaticProvider is a fixed list of controller instances.
type StaticProvider []any

func (p StaticProvider) Controllers() []any { return p }

// MapStore is the default in-memory MetadataStore. Targets are compared
// by identity (pointer equality for pointer targets).
type MapStore struct {
	mu      sync.RWMutex
	entries map[any]map[string]any
}

func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[any]map[string]any)}
}

func (s *MapStore) Get(target any, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kv, ok := s.entries[target]
	if !ok {
		return nil, false
	}
	v, ok := kv[key]
	return v, ok
}

func (s *MapStore) Set(target any, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.entries[target]
	if !ok {
		kv = make(map[string]any)
		s.entries[target] = kv
	}
	kv[key] = value
}

// Annotate records controller-level options and method metadata for a
// target in one call. Convenience over raw Set for the common
// registration path.
func Annotate(store MetadataStore, target any, controller ControllerOptions, methods []MethodMeta) {
	store.Set(target, KeyController, controller)
	store.Set(target, KeyMethods, methods)
}
