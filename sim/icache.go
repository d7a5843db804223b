package sim

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// ICacheConfig sizes the instruction cache.
type ICacheConfig struct {
	// Sets is the number of sets.
	Sets int
	// Ways is the associativity.
	Ways int
	// LineSize in bytes; a multiple of the instruction size.
	LineSize int
	// Check re-reads every hit from memory and reports a fatal mismatch
	// when code was patched without a flush.
	Check bool
}

// DefaultICacheConfig returns a 16KB 4-way cache with 64B lines.
func DefaultICacheConfig() ICacheConfig {
	return ICacheConfig{
		Sets:     64,
		Ways:     4,
		LineSize: 64,
	}
}

// ICacheStats holds instruction cache statistics.
type ICacheStats struct {
	Fetches   uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// ICache caches instruction words fetched from simulated memory. Tags and
// replacement come from an Akita cache directory; the words of each line
// are held alongside, indexed by (set, way).
//
// Simulated code is patched in place (label back-patching of finalized
// code, breakpoints), so writers must call Flush for the patched range,
// exactly as generated code on real hardware must flush the icache.
type ICache struct {
	config    ICacheConfig
	directory *akitacache.DirectoryImpl
	lines     [][]uint32
	// valid marks the words of each line that were mapped when it was
	// filled. Lines at the end of a region are only partly backed.
	valid [][]bool
	stats ICacheStats
}

// NewICache creates an instruction cache.
func NewICache(config ICacheConfig) *ICache {
	if config.LineSize < 4 || config.LineSize%4 != 0 {
		panic(fmt.Sprintf("sim: icache line size %d is not a multiple of 4", config.LineSize))
	}
	total := config.Sets * config.Ways
	lines := make([][]uint32, total)
	valid := make([][]bool, total)
	for i := range lines {
		lines[i] = make([]uint32, config.LineSize/4)
		valid[i] = make([]bool, config.LineSize/4)
	}

	return &ICache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Ways,
			config.LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		lines: lines,
		valid: valid,
	}
}

// Config returns the cache configuration.
func (c *ICache) Config() ICacheConfig { return c.config }

// Stats returns cache statistics.
func (c *ICache) Stats() ICacheStats { return c.stats }

func (c *ICache) lineIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Ways + block.WayID
}

func (c *ICache) lineAddr(addr uint64) uint64 {
	return addr / uint64(c.config.LineSize) * uint64(c.config.LineSize)
}

// Fetch returns the instruction word at addr.
func (c *ICache) Fetch(addr uint64, mem *Memory) (uint32, error) {
	c.stats.Fetches++
	lineAddr := c.lineAddr(addr)
	word := int(addr-lineAddr) / 4

	block := c.directory.Lookup(0, lineAddr)
	if block != nil && block.IsValid && c.valid[c.lineIndex(block)][word] {
		c.stats.Hits++
		c.directory.Visit(block)
		cached := c.lines[c.lineIndex(block)][word]
		if c.config.Check {
			actual, err := mem.Read32(addr)
			if err != nil {
				return 0, err
			}
			if actual != cached {
				return 0, &FatalError{
					Kind:    FaultICacheMismatch,
					PC:      addr,
					Addr:    addr,
					Word:    actual,
					Message: fmt.Sprintf("cached 0x%08x, memory 0x%08x", cached, actual),
				}
			}
		}
		return cached, nil
	}

	c.stats.Misses++
	if !mem.IsLegal(addr, 4) {
		return mem.Read32(addr)
	}
	if block != nil && block.IsValid {
		// A partly backed line whose missing word has since been mapped.
		c.directory.Visit(block)
		return c.fill(block, lineAddr, word, mem)
	}

	victim := c.directory.FindVictim(lineAddr)
	if victim == nil {
		return mem.Read32(addr)
	}
	if victim.IsValid {
		c.stats.Evictions++
		victim.IsValid = false
	}
	v, err := c.fill(victim, lineAddr, word, mem)
	if err != nil {
		return 0, err
	}
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return v, nil
}

// fill loads the mapped words of the line at lineAddr into block and
// returns the word at index word.
func (c *ICache) fill(block *akitacache.Block, lineAddr uint64, word int, mem *Memory) (uint32, error) {
	i := c.lineIndex(block)
	line, valid := c.lines[i], c.valid[i]
	for w := range line {
		a := lineAddr + uint64(4*w)
		if !mem.IsLegal(a, 4) {
			line[w], valid[w] = 0, false
			continue
		}
		v, err := mem.Read32(a)
		if err != nil {
			return 0, err
		}
		line[w], valid[w] = v, true
	}
	return line[word], nil
}

// Flush invalidates every line overlapping [addr, addr+size).
func (c *ICache) Flush(addr uint64, size int) {
	c.stats.Flushes++
	if size <= 0 {
		return
	}
	end := addr + uint64(size)
	for line := c.lineAddr(addr); line < end; line += uint64(c.config.LineSize) {
		block := c.directory.Lookup(0, line)
		if block != nil && block.IsValid {
			block.IsValid = false
		}
	}
}

// FlushAll invalidates the whole cache.
func (c *ICache) FlushAll() {
	c.stats.Flushes++
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all lines and clears statistics.
func (c *ICache) Reset() {
	c.directory.Reset()
	c.stats = ICacheStats{}
}
