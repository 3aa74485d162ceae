//go:build !linux

package taskpool

import "errors"

// PinToCPU is only supported on Linux.
func PinToCPU(cpu int) error {
	return errors.New("taskpool: cpu pinning is not supported on this platform")
}
