//go:build linux

package taskpool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PinToCPU restricts the calling OS thread to a single CPU. The caller
// should hold runtime.LockOSThread.
func PinToCPU(cpu int) error {
	var mask unix.CPUSet
	if cpu < 0 || cpu >= 8*int(unsafe.Sizeof(mask)) {
		return fmt.Errorf("taskpool: cpu %d out of range", cpu)
	}
	mask.Zero()
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("taskpool: pin to cpu %d: %w", cpu, err)
	}
	return nil
}
