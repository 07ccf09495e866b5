package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned when registering a connector whose
	// name is taken. The existing connector is kept.
	ErrAlreadyRegistered = errors.New("connector already registered")

	// ErrNotFound is returned when looking up an unregistered connector.
	ErrNotFound = errors.New("connector not found")
)

// Registry manages the daemon's set of connectors. All methods are safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
	}
}

// Register adds a connector. The first registration for a name wins;
// duplicates return ErrAlreadyRegistered and leave the original in place.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.connectors[name] = c
	return nil
}

// Get retrieves a connector by name, returning ErrNotFound when absent.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.connectors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return c, nil
}

// GetOptional retrieves a connector by name without an error, for
// callers that treat absence as a normal condition.
func (r *Registry) GetOptional(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.connectors[name]
	return c, exists
}

// Unregister removes and returns the named connector, or nil if it was
// not registered. Never errors, so shutdown paths can call it blindly.
func (r *Registry) Unregister(name string) Connector {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.connectors[name]
	if !exists {
		return nil
	}

	delete(r.connectors, name)
	return c
}

// ConnectAll connects every registered connector concurrently. Failures
// are gathered per connector and never abort siblings; the returned map
// holds an entry only for connectors that failed.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	return r.fanOut(ctx, func(ctx context.Context, c Connector) error {
		return c.Connect(ctx)
	})
}

// DisconnectAll disconnects every registered connector concurrently with
// the same gather-and-continue behavior as ConnectAll.
func (r *Registry) DisconnectAll(ctx context.Context) map[string]error {
	return r.fanOut(ctx, func(ctx context.Context, c Connector) error {
		return c.Disconnect(ctx)
	})
}

// fanOut runs op against every connector in parallel, collecting errors.
func (r *Registry) fanOut(ctx context.Context, op func(context.Context, Connector) error) map[string]error {
	r.mu.RLock()
	snapshot := make([]Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		results = make(map[string]error)
	)

	for _, c := range snapshot {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()

			if err := op(ctx, c); err != nil {
				errMu.Lock()
				results[c.Name()] = err
				errMu.Unlock()
			}
		}(c)
	}

	wg.Wait()
	return results
}

// RegistryStatus is the serializable registry summary.
type RegistryStatus struct {
	Connectors map[string]Status `json:"connectors"`
	Total      int               `json:"total"`
}

// Status returns the status of every registered connector.
func (r *Registry) Status() RegistryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]Status, len(r.connectors))
	for name, c := range r.connectors {
		statuses[name] = c.Status()
	}

	return RegistryStatus{
		Connectors: statuses,
		Total:      len(statuses),
	}
}

// Names returns the sorted names of all registered connectors.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// All returns every registered connector.
func (r *Registry) All() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		all = append(all, c)
	}

	return all
}

// Clear removes every connector and returns the sorted names that were
// removed. Connectors are not disconnected; callers wanting a clean
// shutdown run DisconnectAll first.
func (r *Registry) Clear() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)

	r.connectors = make(map[string]Connector)
	return names
}
