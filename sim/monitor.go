package sim

import (
	"sync"
	"sync/atomic"
)

// MonitorEntries is the capacity of the exclusive reservation table.
const MonitorEntries = 16

// OwnerID identifies one execution context holding reservations.
type OwnerID uint64

var nextOwner atomic.Uint64

// NewOwnerID returns a process-unique owner id.
func NewOwnerID() OwnerID {
	return OwnerID(nextOwner.Add(1))
}

type reservation struct {
	owner OwnerID
	addr  uint64
}

// Monitor is the global exclusive-access reservation table shared by every
// simulator instance. Entries are replaced round-robin.
type Monitor struct {
	mu      sync.Mutex
	entries [MonitorEntries]reservation
	next    int
}

// DefaultMonitor is the process-wide monitor simulators use unless one is
// supplied.
var DefaultMonitor = NewMonitor()

// NewMonitor returns an empty table.
func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) clearOwner(owner OwnerID) {
	for i := range m.entries {
		if m.entries[i].owner == owner {
			m.entries[i] = reservation{}
		}
	}
}

// LoadExclusive reserves addr for owner, dropping owner's previous
// reservation.
func (m *Monitor) LoadExclusive(owner OwnerID, addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearOwner(owner)
	m.entries[m.next] = reservation{owner: owner, addr: addr}
	m.next = (m.next + 1) % MonitorEntries
}

// StoreExclusive reports whether owner still holds a reservation for addr.
// On success every reservation for addr, from any owner, is cleared. The
// owner's reservation is consumed either way.
func (m *Monitor) StoreExclusive(owner OwnerID, addr uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := false
	for i := range m.entries {
		if m.entries[i].owner == owner && m.entries[i].addr == addr {
			held = true
		}
	}
	m.clearOwner(owner)
	if !held {
		return false
	}
	m.invalidate(addr)
	return true
}

func (m *Monitor) invalidate(addr uint64) {
	for i := range m.entries {
		if m.entries[i].owner != 0 && m.entries[i].addr == addr {
			m.entries[i] = reservation{}
		}
	}
}

// Invalidate clears every reservation for addr.
func (m *Monitor) Invalidate(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidate(addr)
}

// ClearExclusive drops owner's reservation.
func (m *Monitor) ClearExclusive(owner OwnerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearOwner(owner)
}

// HasReservation reports whether owner holds a reservation for addr.
func (m *Monitor) HasReservation(owner OwnerID, addr uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.owner == owner && e.addr == addr {
			return true
		}
	}
	return false
}

// ExclusiveState is the per-instance load-exclusive record used by the
// ARM64 simulator: the reserved address and the value observed there. A
// store-exclusive succeeds only when the address matches, memory still
// holds the snapshot, and no other context's exclusive store to the same
// address has intervened.
type ExclusiveState struct {
	valid   bool
	addr    uint64
	size    int
	value   uint64
	owner   OwnerID
	monitor *Monitor
}

// NewExclusiveState returns a cleared state that broadcasts through m.
func NewExclusiveState(m *Monitor) *ExclusiveState {
	if m == nil {
		m = DefaultMonitor
	}
	return &ExclusiveState{owner: NewOwnerID(), monitor: m}
}

// Load records a reservation.
func (s *ExclusiveState) Load(addr uint64, size int, value uint64) {
	s.valid = true
	s.addr = addr
	s.size = size
	s.value = value
	s.monitor.LoadExclusive(s.owner, addr)
}

// Store reports whether a store-exclusive of size bytes to addr may
// proceed given the current memory contents. The reservation is consumed.
func (s *ExclusiveState) Store(addr uint64, size int, current uint64) bool {
	ok := s.valid && s.addr == addr && s.size == size && s.value == current
	s.valid = false
	if !ok {
		s.monitor.ClearExclusive(s.owner)
		return false
	}
	return s.monitor.StoreExclusive(s.owner, addr)
}

// Clear drops the reservation.
func (s *ExclusiveState) Clear() {
	s.valid = false
	s.monitor.ClearExclusive(s.owner)
}

// Valid reports whether a reservation is outstanding.
func (s *ExclusiveState) Valid() bool { return s.valid }
