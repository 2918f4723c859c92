//go:build linux

package session

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// prefetchModel warms the OS page cache with a sequential read of the model
// file. The fadvise hint lets the kernel read ahead aggressively; if it
// fails the plain read still does the work.
func prefetchModel(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_ = unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL)

	buf := make([]byte, 1<<20)
	_, err = io.CopyBuffer(io.Discard, file, buf)
	return err
}
