//go:build linux

package taskpool

import (
	"runtime"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPinToCPU(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var orig unix.CPUSet
	if err := unix.SchedGetaffinity(0, &orig); err != nil {
		t.Skipf("sched_getaffinity unavailable: %v", err)
	}
	defer func() { _ = unix.SchedSetaffinity(0, &orig) }()

	cpu := -1
	for i := 0; i < runtime.NumCPU()*4 && cpu < 0; i++ {
		if orig.IsSet(i) {
			cpu = i
		}
	}
	if cpu < 0 {
		t.Skip("no usable cpu in affinity mask")
	}

	if err := PinToCPU(cpu); err != nil {
		t.Fatalf("PinToCPU(%d): %v", cpu, err)
	}
	var got unix.CPUSet
	if err := unix.SchedGetaffinity(0, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count() != 1 || !got.IsSet(cpu) {
		t.Fatalf("affinity mask has %d cpus; want only cpu %d", got.Count(), cpu)
	}

	if err := PinToCPU(-1); err == nil {
		t.Fatal("PinToCPU(-1) succeeded")
	}
}
