package sim

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// DefaultLowGuard is the size of the low address range that is always
// illegal to touch, catching null and near-null dereferences.
const DefaultLowGuard = 0x1000

// Region is one contiguous mapping of the simulated address space.
type Region struct {
	Name string
	Base uint64
	Data []byte

	next uint64
}

// End returns the first address past the region.
func (r *Region) End() uint64 { return r.Base + uint64(len(r.Data)) }

// Contains reports whether [addr, addr+size) lies inside the region.
func (r *Region) Contains(addr uint64, size int) bool {
	return addr >= r.Base && addr+uint64(size) <= r.End() && addr+uint64(size) >= addr
}

// Alloc bump-allocates size bytes aligned to align inside the region and
// returns the simulated address.
func (r *Region) Alloc(size, align int) (uint64, error) {
	if align <= 0 {
		align = 1
	}
	addr := r.Base + r.next
	if rem := addr % uint64(align); rem != 0 {
		addr += uint64(align) - rem
	}
	if addr+uint64(size) > r.End() {
		return 0, fmt.Errorf("region %s exhausted: need %d bytes", r.Name, size)
	}
	r.next = addr + uint64(size) - r.Base
	return addr, nil
}

// Memory is a little-endian simulated address space made of named regions.
// It is safe for concurrent use by several simulators. Reads share the
// lock and writes hold it exclusively for their own duration.
type Memory struct {
	mu       sync.RWMutex
	regions  []*Region
	lowGuard uint64
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithLowGuard sets the size of the always-illegal low address range.
func WithLowGuard(size uint64) MemoryOption {
	return func(m *Memory) {
		m.lowGuard = size
	}
}

// NewMemory creates an empty address space.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{lowGuard: DefaultLowGuard}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LowGuard returns the size of the illegal low range.
func (m *Memory) LowGuard() uint64 { return m.lowGuard }

// Map creates a zeroed region of size bytes at base.
func (m *Memory) Map(name string, base uint64, size int) (*Region, error) {
	return m.MapBytes(name, base, make([]byte, size))
}

// MapBytes maps data at base. The region aliases data.
func (m *Memory) MapBytes(name string, base uint64, data []byte) (*Region, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("mapping %s: empty region", name)
	}
	r := &Region{Name: name, Base: base, Data: data}
	if r.End() < base {
		return nil, fmt.Errorf("mapping %s: region wraps the address space", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.regions {
		if base < other.End() && other.Base < r.End() {
			return nil, fmt.Errorf("mapping %s at 0x%x: overlaps %s [0x%x, 0x%x)",
				name, base, other.Name, other.Base, other.End())
		}
	}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].Base < m.regions[j].Base })
	return r, nil
}

// Unmap removes the region named name.
func (m *Memory) Unmap(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.regions {
		if r.Name == name {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return true
		}
	}
	return false
}

// Region returns the region named name.
func (m *Memory) Region(name string) (*Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regions {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Regions returns the current mappings ordered by base address.
func (m *Memory) Regions() []*Region {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Region, len(m.regions))
	copy(out, m.regions)
	return out
}

// IsLegal reports whether [addr, addr+size) may be accessed.
func (m *Memory) IsLegal(addr uint64, size int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.lookup(addr, size, false)
	return err == nil
}

func (m *Memory) lookup(addr uint64, size int, write bool) ([]byte, error) {
	if addr < m.lowGuard {
		return nil, m.illegal(addr, size, write, "address in low guard")
	}
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].End() > addr })
	if i < len(m.regions) && m.regions[i].Contains(addr, size) {
		r := m.regions[i]
		off := addr - r.Base
		return r.Data[off : off+uint64(size)], nil
	}
	return nil, m.illegal(addr, size, write, "unmapped")
}

func (m *Memory) illegal(addr uint64, size int, write bool, why string) error {
	op := "read"
	if write {
		op = "write"
	}
	return &FatalError{
		Kind:    FaultIllegalAccess,
		Addr:    addr,
		Message: fmt.Sprintf("%d-byte %s, %s", size, op, why),
	}
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint64) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.lookup(addr, 1, false)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint64) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.lookup(addr, 2, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.lookup(addr, 4, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.lookup(addr, 8, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint64, v uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookup(addr, 1, true)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookup(addr, 2, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, v uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookup(addr, 4, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookup(addr, 8, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// ReadBytes copies n bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, n int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.lookup(addr, n, false)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// WriteBytes copies data to addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookup(addr, len(data), true)
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

// ReadCString reads a NUL-terminated string of at most max bytes.
func (m *Memory) ReadCString(addr uint64, max int) (string, error) {
	buf := make([]byte, 0, 32)
	for i := 0; i < max; i++ {
		c, err := m.Read8(addr + uint64(i))
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}
