package dumper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PartitionInfo is one entry of partitions_info.json (§4.7).
type PartitionInfo struct {
	PartitionName string `json:"partition_name"`
	SizeInBlocks  uint64 `json:"size_in_blocks"`
	SizeInBytes   uint64 `json:"size_in_bytes"`
	SizeReadable  string `json:"size_readable"`
}

// ListPartitions computes a PartitionInfo for every partition in the
// manifest, in manifest order.
func ListPartitions(p *Payload) []PartitionInfo {
	infos := make([]PartitionInfo, 0, len(p.Manifest.Partitions))
	for i := range p.Manifest.Partitions {
		pu := &p.Manifest.Partitions[i]
		blocks := partitionSizeInBlocks(pu)
		sizeBytes := blocks * uint64(p.BlockSize)
		infos = append(infos, PartitionInfo{
			PartitionName: pu.PartitionName,
			SizeInBlocks:  blocks,
			SizeInBytes:   sizeBytes,
			SizeReadable:  formatSize(sizeBytes),
		})
	}
	return infos
}

// WritePartitionsInfo writes partitions_info.json to outDir and returns the
// path written, matching original_source's list_partitions_info.
func WritePartitionsInfo(outDir string, infos []PartitionInfo) (string, error) {
	outPath := filepath.Join(outDir, "partitions_info.json")
	data, err := json.MarshalIndent(infos, "", "    ")
	if err != nil {
		return "", fmt.Errorf("listing: marshaling partitions info: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("listing: writing %s: %w", outPath, err)
	}
	return outPath, nil
}

// CompactSummary renders the single-line "name(size), name(size), ..."
// inventory printed to stdout alongside partitions_info.json.
func CompactSummary(infos []PartitionInfo) string {
	parts := make([]string, len(infos))
	for i, info := range infos {
		parts[i] = fmt.Sprintf("%s(%s)", info.PartitionName, info.SizeReadable)
	}
	return strings.Join(parts, ", ")
}

// ExtractMetadata reads META-INF/com/android/metadata from a zip-wrapped
// payload, writes it to <outDir>/metadata, and returns its content (§4.7).
func ExtractMetadata(src ByteSource, outDir string) (string, error) {
	content, err := ExtractArchiveMetadata(src)
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, "metadata")
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("listing: writing %s: %w", outPath, err)
	}
	return content, nil
}
