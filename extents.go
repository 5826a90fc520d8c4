package dumper

import (
	"strconv"

	"github.com/xireiki/payload-dumper/internal/manifest"
)

// partitionSizeInBlocks sums num_blocks across every operation's
// dst_extents for a partition (§4.7).
func partitionSizeInBlocks(pu *manifest.PartitionUpdate) uint64 {
	var blocks uint64
	for _, op := range pu.Operations {
		for _, ext := range op.DstExtents {
			blocks += ext.NumBlocks
		}
	}
	return blocks
}

// partitionFileSize returns the byte length an extracted partition image
// must have: the highest (start_block + num_blocks) * block_size across all
// destination extents (§8, "after extraction" invariant). This can differ
// from partitionSizeInBlocks * blockSize when extents are non-contiguous.
func partitionFileSize(pu *manifest.PartitionUpdate, blockSize uint32) uint64 {
	var maxBlock uint64
	for _, op := range pu.Operations {
		for _, ext := range op.DstExtents {
			if end := ext.StartBlock + ext.NumBlocks; end > maxBlock {
				maxBlock = end
			}
		}
	}
	return maxBlock * uint64(blockSize)
}

// formatSize renders a byte count using binary units with one decimal
// place and no space before the unit, e.g. "2.0MB", matching
// original_source's f"{x:.1f}{unit}" formatter exactly (§4.7, §8).
func formatSize(bytes uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return strconv.FormatFloat(float64(bytes)/gb, 'f', 1, 64) + "GB"
	case bytes >= mb:
		return strconv.FormatFloat(float64(bytes)/mb, 'f', 1, 64) + "MB"
	default:
		return strconv.FormatFloat(float64(bytes)/kb, 'f', 1, 64) + "KB"
	}
}
