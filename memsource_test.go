package dumper

import "io"

// memSource is an in-memory ByteSource used across the test files in this
// package so framing, archive, and pool tests don't need real files or
// network round-trips to exercise ByteSource-polymorphic code paths (§9).
type memSource struct {
	data []byte
	pos  int64
}

func newMemSource(data []byte) *memSource {
	return &memSource{data: data}
}

func (m *memSource) Size() int64 { return int64(len(m.data)) }

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, ErrInvalidSeek
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memSource) Read(p []byte) (int, error) {
	n, err := m.ReadAt(p, m.pos)
	m.pos += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (m *memSource) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.data)) + offset
	default:
		return 0, ErrInvalidSeek
	}
	if next < 0 || next > int64(len(m.data)) {
		return 0, ErrInvalidSeek
	}
	m.pos = next
	return m.pos, nil
}

func (m *memSource) Close() error { return nil }
