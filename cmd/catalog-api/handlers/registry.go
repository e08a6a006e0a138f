package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/workflow"
)

// MachineFactory creates the machine backing a new session.
type MachineFactory func() *workflow.Machine

// Registry maps session ids to their workflow machines. A machine that
// starts over gets a new session id and is re-keyed under it.
type Registry struct {
	mu         sync.RWMutex
	machines   map[string]*workflow.Machine
	newMachine MachineFactory
	logger     *observability.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(factory MachineFactory, logger *observability.Logger) *Registry {
	return &Registry{
		machines:   make(map[string]*workflow.Machine),
		newMachine: factory,
		logger:     logger.WithComponent("sessions"),
	}
}

// Create starts a new session.
func (r *Registry) Create() *workflow.Machine {
	m := r.newMachine()

	r.mu.Lock()
	r.machines[m.SessionID()] = m
	r.mu.Unlock()
	return m
}

// Get returns the machine for a session id.
func (r *Registry) Get(id string) (*workflow.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return m, nil
}

// Rekey moves m from oldID to its current session id.
func (r *Registry) Rekey(oldID string, m *workflow.Machine) {
	newID := m.SessionID()
	if newID == oldID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.machines[oldID] == m {
		delete(r.machines, oldID)
	}
	r.machines[newID] = m
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

// Sweep drops sessions not updated within maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.RLock()
	entries := make(map[string]*workflow.Machine, len(r.machines))
	for id, m := range r.machines {
		entries[id] = m
	}
	r.mu.RUnlock()

	var stale []*workflow.Machine
	for id, m := range entries {
		if !m.Snapshot().UpdatedAt.Before(cutoff) {
			continue
		}
		r.mu.Lock()
		if r.machines[id] == m {
			delete(r.machines, id)
			stale = append(stale, m)
		}
		r.mu.Unlock()
	}

	for _, m := range stale {
		m.Close()
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				r.logger.Info().Int("removed", n).Int("remaining", r.Len()).Msg("Swept idle sessions")
			}
		}
	}
}

// Close waits for every machine's background work.
func (r *Registry) Close() {
	r.mu.Lock()
	machines := make([]*workflow.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.machines = make(map[string]*workflow.Machine)
	r.mu.Unlock()

	for _, m := range machines {
		m.Close()
	}
}
