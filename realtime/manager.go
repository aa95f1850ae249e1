// Package realtime owns live-query teardown. A Manager aggregates the
// unsubscribe capabilities a view accumulates while it is mounted and
// guarantees each is invoked exactly once when the view changes filters or
// goes away, closing the classic leak where two live listeners with
// different filters keep flipping shared state between result sets.
package realtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/operatornetwork/opnet/store"
)

// Manager holds the active unsubscribe capabilities for one view scope.
// The zero value is usable. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	subs []store.Unsubscribe
}

// NewManager returns an empty subscription manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add takes ownership of an unsubscribe capability. Capabilities added
// after a DisposeAll start a fresh set.
func (m *Manager) Add(unsubscribe store.Unsubscribe) {
	if unsubscribe == nil {
		return
	}
	m.mu.Lock()
	m.subs = append(m.subs, unsubscribe)
	m.mu.Unlock()
}

// Len reports the number of owned capabilities.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// DisposeAll invokes every owned capability exactly once and clears the
// set. Calling it again is a no-op. A capability that panics does not stop
// the cleanup pass; failures are collected and surfaced as one aggregate
// error after every capability has been attempted.
func (m *Manager) DisposeAll() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	var errs []error
	for i, unsubscribe := range subs {
		if err := invoke(unsubscribe); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// invoke runs a capability, converting a panic into an error so the
// remaining capabilities still get released.
func invoke(unsubscribe store.Unsubscribe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during unsubscribe: %v", r)
		}
	}()
	unsubscribe()
	return nil
}
