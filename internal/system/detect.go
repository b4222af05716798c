package system

import (
	"os"
	"strings"

	"github.com/kioskworks/kioskctl/internal/core"
)

// SchemeKind selects how the boot firmware reserves memory for the GPU.
type SchemeKind int

const (
	// FixedAllocation carves out a static gpu_mem split (older boards).
	FixedAllocation SchemeKind = iota
	// DynamicPool uses the KMS driver's CMA pool (Pi 4 family and later).
	DynamicPool
)

// MemoryScheme is the closed variant selected once per run and handed to the
// boot-parameters applier; it is never re-detected mid-run.
type MemoryScheme struct {
	Kind SchemeKind
	Size int
}

// DetectMemoryScheme picks the scheme for the detected board. gpuMem and
// cmaSize come from Settings; the board model decides which one applies.
func DetectMemoryScheme(fsys core.FileSystem, gpuMem, cmaSize int) MemoryScheme {
	model := boardModel(fsys)
	if strings.Contains(model, "Raspberry Pi 4") || strings.Contains(model, "Raspberry Pi 5") ||
		strings.Contains(model, "Compute Module 4") {
		return MemoryScheme{Kind: DynamicPool, Size: cmaSize}
	}
	return MemoryScheme{Kind: FixedAllocation, Size: gpuMem}
}

// boardModel reads the device-tree model string. Empty on non-Pi hosts,
// which falls back to the fixed allocation scheme.
func boardModel(fsys core.FileSystem) string {
	data, err := fsys.ReadFile("/proc/device-tree/model")
	if err != nil {
		return ""
	}
	// The device-tree string is NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}

// SwapActive reports whether any swap device is active, regardless of which
// mechanism provides it (swap file, partition, zram). /proc/swaps has a
// header line followed by one line per active device.
func SwapActive(fsys core.FileSystem) (bool, error) {
	data, err := fsys.ReadFile("/proc/swaps")
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	return len(lines) > 1, nil
}

// ModuleLoaded reports whether the named kernel module is currently loaded.
func ModuleLoaded(fsys core.FileSystem, name string) bool {
	data, err := fsys.ReadFile("/proc/modules")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, name+" ") {
			return true
		}
	}
	return false
}
