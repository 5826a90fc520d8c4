package dumper

import "io"

// ByteSource is the capability set the framing parser, archive opener, and
// pre-load phase need from an input: local file and HTTPRangeFile both
// satisfy it, so C3/C2/pre-load never care which one they were handed
// (§9, "byte source polymorphism").
type ByteSource interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	Size() int64
}
