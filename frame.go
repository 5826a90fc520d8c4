package dumper

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xireiki/payload-dumper/internal/manifest"
)

const payloadMagic = "CrAU"
const supportedVersion = 2

// header is the fixed 24-byte prefix at offset 0 of the payload stream
// (§3). ManifestSigLen is only meaningful for Version > 1; the core
// rejects anything but Version == 2.
type header struct {
	Magic          [4]byte
	Version        uint64
	ManifestLen    uint64
	ManifestSigLen uint32
}

// Payload wraps a parsed CrAU frame: the decoded manifest, the raw
// manifest-signature bytes (opaque, unvalidated), and the absolute offset
// of the data region within src.
type Payload struct {
	src           ByteSource
	ManifestBytes []byte
	Signature     []byte
	Manifest      *manifest.Manifest
	BlockSize     uint32
	DataOffset    int64
}

// ParsePayload rewinds src to offset 0, reads the header, manifest, and
// signature from there, and leaves src positioned at the start of the data
// region (§4.3).
func ParsePayload(src ByteSource) (*Payload, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("frame: rewinding source: %w", err)
	}

	var hdr header
	if err := binary.Read(src, binary.BigEndian, &hdr.Magic); err != nil {
		return nil, fmt.Errorf("frame: %w: %v", ErrBadMagic, err)
	}
	if string(hdr.Magic[:]) != payloadMagic {
		return nil, ErrBadMagic
	}
	if err := binary.Read(src, binary.BigEndian, &hdr.Version); err != nil {
		return nil, fmt.Errorf("frame: short read on version: %w", err)
	}
	if hdr.Version != supportedVersion {
		return nil, &UnsupportedVersionError{Version: hdr.Version}
	}
	if err := binary.Read(src, binary.BigEndian, &hdr.ManifestLen); err != nil {
		return nil, fmt.Errorf("frame: short read on manifest size: %w", err)
	}
	if err := binary.Read(src, binary.BigEndian, &hdr.ManifestSigLen); err != nil {
		return nil, fmt.Errorf("frame: short read on signature size: %w", err)
	}

	manifestBytes := make([]byte, hdr.ManifestLen)
	if _, err := io.ReadFull(src, manifestBytes); err != nil {
		return nil, fmt.Errorf("frame: short read on manifest body: %w", err)
	}

	sig := make([]byte, hdr.ManifestSigLen)
	if _, err := io.ReadFull(src, sig); err != nil {
		return nil, fmt.Errorf("frame: short read on manifest signature: %w", err)
	}

	dataOffset, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("frame: recording data offset: %w", err)
	}

	decoded, err := manifest.Decode(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("frame: decoding manifest: %w", err)
	}

	return &Payload{
		src:           src,
		ManifestBytes: manifestBytes,
		Signature:     sig,
		Manifest:      decoded,
		BlockSize:     decoded.BlockSize,
		DataOffset:    dataOffset,
	}, nil
}

// FindPartition returns the named partition, or nil if absent.
func (p *Payload) FindPartition(name string) *manifest.PartitionUpdate {
	for i := range p.Manifest.Partitions {
		if p.Manifest.Partitions[i].PartitionName == name {
			return &p.Manifest.Partitions[i]
		}
	}
	return nil
}
