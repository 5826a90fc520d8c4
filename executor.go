package dumper

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/zstd"
	"github.com/edsrzf/mmap-go"
	"github.com/kr/binarydist"
	"github.com/ulikunitz/xz"

	"github.com/xireiki/payload-dumper/internal/manifest"
)

// SourceImage is the read-only differential-mode source image backing
// SOURCE_COPY/SOURCE_BSDIFF. It's mmap'd (github.com/edsrzf/mmap-go) so
// gathering scattered src_extents is a slice of the mapping rather than a
// seek+read per extent, in the style of magiskboot_go's boot-image handling.
type SourceImage struct {
	file *os.File
	data mmap.MMap
}

// OpenSourceImage maps path read-only.
func OpenSourceImage(path string) (*SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("executor: opening source image %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("executor: mmapping source image %s: %w", path, err)
	}
	return &SourceImage{file: f, data: m}, nil
}

// Close unmaps and closes the underlying file.
func (s *SourceImage) Close() error {
	unmapErr := s.data.Unmap()
	closeErr := s.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// gather concatenates the bytes named by a list of extents into one buffer,
// in order (§4.5's SOURCE_COPY/SOURCE_BSDIFF gather step).
func (s *SourceImage) gather(extents []manifest.Extent, blockSize uint32) ([]byte, error) {
	var buf bytes.Buffer
	for _, ext := range extents {
		start := ext.StartBlock * uint64(blockSize)
		length := ext.NumBlocks * uint64(blockSize)
		if start+length > uint64(len(s.data)) {
			return nil, fmt.Errorf("executor: source extent [%d,%d) exceeds source image size %d", start, start+length, len(s.data))
		}
		buf.Write(s.data[start : start+length])
	}
	return buf.Bytes(), nil
}

// ApplyOperation executes a single InstallOperation against out, optionally
// reading from source (only used by SOURCE_* types). data is the operation's
// pre-loaded payload data slice (§4.6's pre-load phase hands this in rather
// than a cursor).
func ApplyOperation(out *os.File, op manifest.InstallOperation, data []byte, blockSize uint32, diffMode bool, source *SourceImage) error {
	switch op.Type {
	case manifest.OpReplace:
		return writeAt(out, dstOffset(op, blockSize), data)

	case manifest.OpReplaceBZ:
		decoded, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			return fmt.Errorf("executor: bzip2 decompress: %w", err)
		}
		return writeAt(out, dstOffset(op, blockSize), decoded)

	case manifest.OpReplaceXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("executor: xz reader: %w", err)
		}
		decoded, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("executor: xz decompress: %w", err)
		}
		return writeAt(out, dstOffset(op, blockSize), decoded)

	case manifest.OpReplaceZSTD:
		r := zstd.NewReader(bytes.NewReader(data))
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("executor: zstd decompress: %w", err)
		}
		return writeAt(out, dstOffset(op, blockSize), decoded)

	case manifest.OpZero:
		for _, ext := range op.DstExtents {
			length := ext.NumBlocks * uint64(blockSize)
			if err := writeAt(out, int64(ext.StartBlock*uint64(blockSize)), make([]byte, length)); err != nil {
				return err
			}
		}
		return nil

	case manifest.OpSourceCopy:
		if !diffMode {
			return ErrSourceCopyNotDifferential
		}
		offset := dstOffset(op, blockSize)
		for _, ext := range op.SrcExtents {
			start := ext.StartBlock * uint64(blockSize)
			length := ext.NumBlocks * uint64(blockSize)
			if start+length > uint64(len(source.data)) {
				return fmt.Errorf("executor: source extent [%d,%d) exceeds source image size %d", start, start+length, len(source.data))
			}
			if err := writeAt(out, offset, source.data[start:start+length]); err != nil {
				return err
			}
			offset += int64(length)
		}
		return nil

	case manifest.OpSourceBSDiff:
		if !diffMode {
			return ErrSourceBSDiffNotDifferential
		}
		old, err := source.gather(op.SrcExtents, blockSize)
		if err != nil {
			return err
		}
		var patched bytes.Buffer
		if err := binarydist.Patch(bytes.NewReader(old), &patched, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("executor: applying bsdiff patch: %w", err)
		}
		return scatter(out, op.DstExtents, blockSize, patched.Bytes())

	default:
		return &UnsupportedOperationError{Type: op.Type.String()}
	}
}

// dstOffset computes the byte offset of an operation's first destination
// extent, the seek target for REPLACE* and SOURCE_COPY writes.
func dstOffset(op manifest.InstallOperation, blockSize uint32) int64 {
	if len(op.DstExtents) == 0 {
		return 0
	}
	return int64(op.DstExtents[0].StartBlock * uint64(blockSize))
}

// scatter writes successive chunks of data to successive destination
// extents, each extent's length in bytes being num_blocks*blockSize
// (§4.5's SOURCE_BSDIFF scatter step).
func scatter(out *os.File, extents []manifest.Extent, blockSize uint32, data []byte) error {
	var n uint64
	for _, ext := range extents {
		length := ext.NumBlocks * uint64(blockSize)
		if n+length > uint64(len(data)) {
			return fmt.Errorf("executor: patched data too short to fill destination extents")
		}
		if err := writeAt(out, int64(ext.StartBlock*uint64(blockSize)), data[n:n+length]); err != nil {
			return err
		}
		n += length
	}
	return nil
}

func writeAt(out *os.File, offset int64, p []byte) error {
	if _, err := out.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("executor: seeking output to %d: %w", offset, err)
	}
	if _, err := out.Write(p); err != nil {
		return fmt.Errorf("executor: writing %d bytes at %d: %w", len(p), offset, err)
	}
	return nil
}
