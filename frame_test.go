package dumper

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/xireiki/payload-dumper/internal/manifest"
)

// buildPayload assembles a raw CrAU-framed byte stream from a manifest and
// a data region, mirroring the on-wire layout ParsePayload expects.
func buildPayload(t *testing.T, m *manifest.Manifest, sig []byte, data []byte) []byte {
	t.Helper()
	manifestBytes := manifest.Encode(m)

	var buf []byte
	buf = append(buf, []byte(payloadMagic)...)

	var versionBytes [8]byte
	binary.BigEndian.PutUint64(versionBytes[:], supportedVersion)
	buf = append(buf, versionBytes[:]...)

	var manifestLenBytes [8]byte
	binary.BigEndian.PutUint64(manifestLenBytes[:], uint64(len(manifestBytes)))
	buf = append(buf, manifestLenBytes[:]...)

	var sigLenBytes [4]byte
	binary.BigEndian.PutUint32(sigLenBytes[:], uint32(len(sig)))
	buf = append(buf, sigLenBytes[:]...)

	buf = append(buf, manifestBytes...)
	buf = append(buf, sig...)
	buf = append(buf, data...)
	return buf
}

func simpleManifest() *manifest.Manifest {
	return &manifest.Manifest{
		BlockSize: 4096,
		Partitions: []manifest.PartitionUpdate{
			{
				PartitionName: "boot",
				Operations: []manifest.InstallOperation{
					{
						Type:       manifest.OpReplace,
						DataOffset: 0,
						DataLength: 4096,
						DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
					},
				},
			},
		},
	}
}

func TestParsePayloadDataOffset(t *testing.T) {
	m := simpleManifest()
	sig := []byte("sig-bytes")
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}

	raw := buildPayload(t, m, sig, data)
	src := newMemSource(raw)

	p, err := ParsePayload(src)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}

	manifestBytes := manifest.Encode(m)
	wantOffset := int64(24 + len(manifestBytes) + len(sig))
	if p.DataOffset != wantOffset {
		t.Fatalf("DataOffset = %d, want %d", p.DataOffset, wantOffset)
	}

	first := make([]byte, 1)
	if _, err := src.ReadAt(first, p.DataOffset); err != nil {
		t.Fatalf("reading first data byte: %v", err)
	}
	if first[0] != data[0] {
		t.Fatalf("first data byte = %d, want %d", first[0], data[0])
	}

	if p.BlockSize != 4096 {
		t.Fatalf("BlockSize = %d, want 4096", p.BlockSize)
	}
	if len(p.Manifest.Partitions) != 1 || p.Manifest.Partitions[0].PartitionName != "boot" {
		t.Fatalf("unexpected decoded manifest: %+v", p.Manifest)
	}
}

func TestParsePayloadBadMagic(t *testing.T) {
	raw := []byte("NOPE0000000000000000000000")
	_, err := ParsePayload(newMemSource(raw))
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestParsePayloadUnsupportedVersion(t *testing.T) {
	m := simpleManifest()
	raw := buildPayload(t, m, nil, nil)
	// overwrite the version field (bytes 4..12) with an unsupported value
	binary.BigEndian.PutUint64(raw[4:12], 99)

	_, err := ParsePayload(newMemSource(raw))
	var uv *UnsupportedVersionError
	if !errors.As(err, &uv) {
		t.Fatalf("err = %v, want *UnsupportedVersionError", err)
	}
	if uv.Version != 99 {
		t.Fatalf("Version = %d, want 99", uv.Version)
	}
}

func TestParsePayloadShortManifest(t *testing.T) {
	raw := []byte(payloadMagic)
	var versionBytes [8]byte
	binary.BigEndian.PutUint64(versionBytes[:], supportedVersion)
	raw = append(raw, versionBytes[:]...)
	var manifestLenBytes [8]byte
	binary.BigEndian.PutUint64(manifestLenBytes[:], 1000) // claims far more than is present
	raw = append(raw, manifestLenBytes[:]...)
	raw = append(raw, 0, 0, 0, 0) // sig length

	_, err := ParsePayload(newMemSource(raw))
	if err == nil {
		t.Fatal("expected an error for a manifest body shorter than its declared length")
	}
}

func TestFindPartition(t *testing.T) {
	m := simpleManifest()
	raw := buildPayload(t, m, nil, make([]byte, 4096))
	p, err := ParsePayload(newMemSource(raw))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}

	if pu := p.FindPartition("boot"); pu == nil {
		t.Fatal("FindPartition(\"boot\") = nil, want a match")
	}
	if pu := p.FindPartition("missing"); pu != nil {
		t.Fatalf("FindPartition(\"missing\") = %+v, want nil", pu)
	}
}
