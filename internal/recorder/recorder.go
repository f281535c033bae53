// Package recorder stores what a simulation run produced: the event firings and the per-step service
// snapshots. Memory keeps them for the JSON log; SQLite persists them.
package recorder

import (
	"sync"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/service"
)

// Recorder is the interface every storage implementation must satisfy.
type Recorder interface {
	RecordFiring(simulationID string, f event.Firing) error
	RecordSnapshot(simulationID string, time float64, l service.ServiceLog) error
	Close() error
}

// Snapshot is a service log taken at a simulation time.
type Snapshot struct {
	SimulationID string
	Time         float64
	Log          service.ServiceLog
}

// Memory keeps everything in slices.
type Memory struct {
	mu        sync.RWMutex
	firings   []event.Firing
	snapshots []Snapshot
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RecordFiring(_ string, f event.Firing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firings = append(m.firings, f)
	return nil
}

func (m *Memory) RecordSnapshot(simulationID string, time float64, l service.ServiceLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, Snapshot{SimulationID: simulationID, Time: time, Log: l})
	return nil
}

func (m *Memory) Close() error { return nil }

// Firings returns a copy of the recorded firings in order.
func (m *Memory) Firings() []event.Firing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]event.Firing(nil), m.firings...)
}

// Snapshots returns a copy of the recorded snapshots in order.
func (m *Memory) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Snapshot(nil), m.snapshots...)
}

// Multi fans every record out to several recorders. The first error wins.
type Multi []Recorder

func (m Multi) RecordFiring(simulationID string, f event.Firing) error {
	for _, r := range m {
		if err := r.RecordFiring(simulationID, f); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordSnapshot(simulationID string, time float64, l service.ServiceLog) error {
	for _, r := range m {
		if err := r.RecordSnapshot(simulationID, time, l); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
