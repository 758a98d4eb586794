package cache

import (
	"math"
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryReader reports current memory use against a ceiling.
// ok is false when the environment cannot report both numbers.
type MemoryReader interface {
	ReadMemory() (used, limit uint64, ok bool)
}

// RuntimeMemory reads Go heap usage and compares it with GOMEMLIMIT,
// or with total system memory when no soft limit is set.
type RuntimeMemory struct{}

func (RuntimeMemory) ReadMemory() (used, limit uint64, ok bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	used = ms.HeapInuse + ms.StackInuse

	// A negative input reads the limit without changing it.
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		return used, uint64(l), true
	}

	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return used, 0, false
	}
	return used, vm.Total, true
}

// NoMemory disables the memory-pressure reaction.
type NoMemory struct{}

func (NoMemory) ReadMemory() (uint64, uint64, bool) { return 0, 0, false }
