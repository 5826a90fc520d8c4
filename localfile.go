package dumper

import (
	"fmt"
	"os"
)

// LocalFile adapts *os.File to the ByteSource contract used throughout the
// core.
type LocalFile struct {
	*os.File
	size int64
}

// OpenLocalFile opens path read-only and stats its size up front.
func OpenLocalFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("localfile: opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("localfile: stat %s: %w", path, err)
	}
	return &LocalFile{File: f, size: info.Size()}, nil
}

// Size returns the file's length as stated at open time.
func (f *LocalFile) Size() int64 { return f.size }
