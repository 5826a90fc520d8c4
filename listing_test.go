package dumper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xireiki/payload-dumper/internal/manifest"
)

func TestFormatSizeExactExample(t *testing.T) {
	// two 256-block extents at a 4096 block size: 2 * 256 * 4096 = 2097152
	// bytes, which the spec's worked example renders as exactly "2.0MB".
	got := formatSize(2 * 256 * 4096)
	if got != "2.0MB" {
		t.Fatalf("formatSize = %q, want %q", got, "2.0MB")
	}
}

func TestFormatSizeUnitBoundaries(t *testing.T) {
	cases := []struct {
		bytes uint64
		want  string
	}{
		{512, "0.5KB"},
		{1024 * 1024, "1.0MB"},
		{1024 * 1024 * 1024, "1.0GB"},
	}
	for _, c := range cases {
		if got := formatSize(c.bytes); got != c.want {
			t.Errorf("formatSize(%d) = %q, want %q", c.bytes, got, c.want)
		}
	}
}

func TestListPartitions(t *testing.T) {
	m := &manifest.Manifest{
		BlockSize: 4096,
		Partitions: []manifest.PartitionUpdate{
			{
				PartitionName: "boot",
				Operations: []manifest.InstallOperation{
					{Type: manifest.OpReplace, DstExtents: []manifest.Extent{
						{StartBlock: 0, NumBlocks: 256},
						{StartBlock: 256, NumBlocks: 256},
					}},
				},
			},
		},
	}
	raw := buildPayload(t, m, nil, make([]byte, 2*256*4096))
	p, err := ParsePayload(newMemSource(raw))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}

	infos := ListPartitions(p)
	if len(infos) != 1 {
		t.Fatalf("len(infos) = %d, want 1", len(infos))
	}
	info := infos[0]
	if info.PartitionName != "boot" {
		t.Fatalf("PartitionName = %q, want boot", info.PartitionName)
	}
	if info.SizeInBlocks != 512 {
		t.Fatalf("SizeInBlocks = %d, want 512", info.SizeInBlocks)
	}
	if info.SizeInBytes != 2*256*4096 {
		t.Fatalf("SizeInBytes = %d, want %d", info.SizeInBytes, 2*256*4096)
	}
	if info.SizeReadable != "2.0MB" {
		t.Fatalf("SizeReadable = %q, want 2.0MB", info.SizeReadable)
	}
}

func TestWritePartitionsInfo(t *testing.T) {
	dir := t.TempDir()
	infos := []PartitionInfo{{PartitionName: "boot", SizeInBlocks: 1, SizeInBytes: 4096, SizeReadable: "4.0KB"}}

	path, err := WritePartitionsInfo(dir, infos)
	if err != nil {
		t.Fatalf("WritePartitionsInfo: %v", err)
	}
	if path != filepath.Join(dir, "partitions_info.json") {
		t.Fatalf("path = %q, unexpected", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	var got []PartitionInfo
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(got) != 1 || got[0].PartitionName != "boot" {
		t.Fatalf("got = %+v, want a single boot entry", got)
	}
}

func TestCompactSummary(t *testing.T) {
	infos := []PartitionInfo{
		{PartitionName: "boot", SizeReadable: "4.0KB"},
		{PartitionName: "system", SizeReadable: "2.0MB"},
	}
	got := CompactSummary(infos)
	want := "boot(4.0KB), system(2.0MB)"
	if got != want {
		t.Fatalf("CompactSummary = %q, want %q", got, want)
	}
}
