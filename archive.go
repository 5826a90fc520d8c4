package dumper

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

const payloadEntryName = "payload.bin"
const androidMetadataEntryName = "META-INF/com/android/metadata"

// OpenArchive tries to interpret src as a raw CrAU payload by peeking its
// magic. If the magic doesn't match, it falls back to treating src as a ZIP
// archive and returns a ByteSource over the uncompressed payload.bin entry
// (§4.2). The returned ByteSource may simply be src itself when no
// unwrapping was needed.
func OpenArchive(src ByteSource) (ByteSource, error) {
	magic := make([]byte, len(payloadMagic))
	n, err := src.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("archive: peeking magic: %w", err)
	}
	if n == len(payloadMagic) && bytes.Equal(magic, []byte(payloadMagic)) {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("archive: rewinding raw payload: %w", err)
		}
		return src, nil
	}

	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return nil, fmt.Errorf("archive: %w: not a raw payload and not a zip: %v", ErrBadMagic, err)
	}

	zf := findEntry(zr, payloadEntryName)
	if zf == nil {
		return nil, fmt.Errorf("archive: %w: zip contains no %s", ErrBadMagic, payloadEntryName)
	}
	if zf.Method != zip.Store {
		return nil, fmt.Errorf("archive: %s is compressed in the zip; the executor requires random access to an uncompressed entry", payloadEntryName)
	}

	dataOff, err := zf.DataOffset()
	if err != nil {
		return nil, fmt.Errorf("archive: locating %s data offset: %w", payloadEntryName, err)
	}

	return &zipEntrySource{
		base:    src,
		dataOff: dataOff,
		size:    int64(zf.UncompressedSize64),
	}, nil
}

// ExtractArchiveMetadata reads META-INF/com/android/metadata as UTF-8 text
// from a ZIP-wrapped payload (§4.7). It fails if src is not a zip archive or
// does not contain the entry.
func ExtractArchiveMetadata(src ByteSource) (string, error) {
	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return "", fmt.Errorf("metadata: input is not a zip archive: %w", err)
	}
	zf := findEntry(zr, androidMetadataEntryName)
	if zf == nil {
		return "", fmt.Errorf("metadata: zip contains no %s", androidMetadataEntryName)
	}
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("metadata: opening %s: %w", androidMetadataEntryName, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("metadata: reading %s: %w", androidMetadataEntryName, err)
	}
	return string(content), nil
}

func findEntry(zr *zip.Reader, suffix string) *zip.File {
	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, suffix) {
			return zf
		}
	}
	return nil
}

// zipEntrySource presents a stored (uncompressed) zip entry as a ByteSource
// by translating offsets into the underlying archive's ReaderAt. Because
// the entry is stored, not deflated, this gives true random access without
// any streaming/seek-forward tricks (§4.2's invariant).
type zipEntrySource struct {
	base    ByteSource
	dataOff int64
	size    int64
	pos     int64
}

func (z *zipEntrySource) Size() int64 { return z.size }

func (z *zipEntrySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > z.size {
		return 0, ErrInvalidSeek
	}
	max := z.size - off
	if int64(len(p)) > max {
		p = p[:max]
	}
	if len(p) == 0 {
		return 0, nil
	}
	return z.base.ReadAt(p, z.dataOff+off)
}

func (z *zipEntrySource) Read(p []byte) (int, error) {
	n, err := z.ReadAt(p, z.pos)
	z.pos += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (z *zipEntrySource) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = z.pos + offset
	case io.SeekEnd:
		next = z.size + offset
	default:
		return 0, ErrInvalidSeek
	}
	if next < 0 || next > z.size {
		return 0, ErrInvalidSeek
	}
	z.pos = next
	return z.pos, nil
}

func (z *zipEntrySource) Close() error {
	return z.base.Close()
}
