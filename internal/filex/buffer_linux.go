//go:build linux

package filex

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocLocked(size int) ([]byte, bool) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, false
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, false
	}
	// Best effort: older kernels reject MADV_DONTDUMP.
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)
	return data, true
}

func freeLocked(data []byte) error {
	if err := unix.Munlock(data); err != nil {
		return fmt.Errorf("secret: munlock failed: %w", err)
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("secret: munmap failed: %w", err)
	}
	return nil
}
