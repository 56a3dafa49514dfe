package arbitrage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Registry holds the running detectors by scanner name.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]*Detector
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]*Detector)}
}

// Register adds d under its scanner name. Names share the scan lease, so a
// duplicate is rejected.
func (r *Registry) Register(d *Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := d.Name()
	if _, dup := r.detectors[name]; dup {
		return fmt.Errorf("arbitrage: detector %q: %w: already registered", name, domain.ErrInvalidInput)
	}
	r.detectors[name] = d
	r.order = append(r.order, name)
	return nil
}

// Get returns the detector registered under name.
func (r *Registry) Get(name string) (*Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage: detector %q: %w", name, domain.ErrNotFound)
	}
	return d, nil
}

// List returns all registered scanner names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.detectors))
	for n := range r.detectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Detectors returns the detectors in registration order.
func (r *Registry) Detectors() []*Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Detector, len(r.order))
	for i, n := range r.order {
		out[i] = r.detectors[n]
	}
	return out
}

// Statuses returns the runtime state of every detector in registration
// order.
func (r *Registry) Statuses() []domain.ScanStatus {
	dets := r.Detectors()
	out := make([]domain.ScanStatus, len(dets))
	for i, d := range dets {
		out[i] = d.Status()
	}
	return out
}

// Trigger requests an immediate run of every detector of kind. queued is
// true when at least one accepted; domain.ErrNotFound means none runs here.
func (r *Registry) Trigger(kind domain.ScanKind) (queued bool, err error) {
	found := false
	for _, d := range r.Detectors() {
		if d.Kind() != kind {
			continue
		}
		found = true
		if d.Trigger() {
			queued = true
		}
	}
	if !found {
		return false, fmt.Errorf("arbitrage: trigger %s: %w", kind, domain.ErrNotFound)
	}
	return queued, nil
}
