//go:build !linux

package session

import (
	"io"
	"os"
)

func prefetchModel(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, 1<<20)
	_, err = io.CopyBuffer(io.Discard, file, buf)
	return err
}
