//go:build unix

package blobstore

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

// adviseSequential hints a front-to-back read of section. Sections are
// rarely page aligned, so failures are ignored.
func adviseSequential(section []byte) {
	if len(section) > 0 {
		_ = unix.Madvise(section, unix.MADV_SEQUENTIAL)
	}
}
