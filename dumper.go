// Package dumper implements the OTA payload extraction core: payload
// framing (C3), manifest decoding (C4), operation execution (C5), the
// partition worker pool (C6), and the listing/metadata services (C7). The
// HTTP range reader (C1) and archive opener (C2) provide the ByteSource the
// rest of the pipeline consumes.
package dumper

import (
	"fmt"
	"runtime"

	"github.com/xireiki/payload-dumper/internal/logging"
	"github.com/xireiki/payload-dumper/internal/manifest"
)

// Config holds the knobs named in §6's command-line surface, minus the ones
// that select *what to do* (list/metadata/extract), which the caller
// expresses by calling the matching Dumper method.
type Config struct {
	OutDir     string
	Diff       bool
	OldDir     string
	Partitions []string // empty means "all partitions"
	Workers    int
}

// DefaultWorkers mirrors the CLI default of "host CPU count".
func DefaultWorkers() int { return runtime.NumCPU() }

// Dumper owns a payload's byte source across its single-owner lifecycle:
// opened once, read serially during framing and pre-load, then closed
// before any parallel work starts (§3's lifecycle section).
type Dumper struct {
	src     ByteSource
	Payload *Payload
	cfg     Config
}

// Open wraps src with the archive opener (§4.2) and parses the payload
// frame and manifest (§4.3/§4.4). src is retained for later pre-load and
// must not be touched by the caller until Extract/List returns.
func Open(src ByteSource, cfg Config) (*Dumper, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	unwrapped, err := OpenArchive(src)
	if err != nil {
		return nil, err
	}
	payload, err := ParsePayload(unwrapped)
	if err != nil {
		return nil, err
	}
	return &Dumper{src: unwrapped, Payload: payload, cfg: cfg}, nil
}

// selectPartitions resolves cfg.Partitions against the manifest. An empty
// selection means "all partitions"; a name with no match is warned about
// and skipped, not treated as fatal (§8, boundary behaviour).
func (d *Dumper) selectPartitions() []manifest.PartitionUpdate {
	if len(d.cfg.Partitions) == 0 {
		return d.Payload.Manifest.Partitions
	}

	selected := make([]manifest.PartitionUpdate, 0, len(d.cfg.Partitions))
	for _, name := range d.cfg.Partitions {
		pu := d.Payload.FindPartition(name)
		if pu == nil {
			logging.Warnf("partition %s not found in payload, skipping", name)
			continue
		}
		selected = append(selected, *pu)
	}
	return selected
}

// PartitionResult is one partition's outcome from Extract: Err is nil on
// success.
type PartitionResult struct {
	PartitionName string
	Err           error
}

// Extract runs the full pipeline: select partitions, pre-load every
// operation's data serially, close the byte source, then dispatch the
// worker pool (§4.6). progress, if non-nil, receives a (partition, +1)
// update after each operation applies. Per-partition failures are
// returned together but do not stop other partitions from completing,
// except that ErrNoPartitionsSelected is returned immediately as a plain
// error before any work begins (§8, boundary behaviour).
func (d *Dumper) Extract(onStart ProgressStartFunc, progress ProgressUpdateFunc) ([]PartitionResult, error) {
	partitions := d.selectPartitions()
	if len(partitions) == 0 {
		return nil, ErrNoPartitionsSelected
	}

	work, err := PreloadOperations(d.src, d.Payload.DataOffset, partitions)
	if err != nil {
		return nil, fmt.Errorf("dumper: pre-load: %w", err)
	}
	if err := d.src.Close(); err != nil {
		logging.Warnf("closing payload source: %v", err)
	}

	errs := RunPool(work, d.Payload.BlockSize, d.cfg.OutDir, d.cfg.Diff, d.cfg.OldDir, d.cfg.Workers, onStart, progress)

	results := make([]PartitionResult, len(work))
	for i, err := range errs {
		results[i] = PartitionResult{PartitionName: work[i].Partition.PartitionName, Err: err}
		if err != nil {
			logging.Errorf("%s: %v", work[i].Partition.PartitionName, err)
		}
	}
	return results, nil
}

// List implements the --list CLI action (§4.7): returns per-partition size
// info without touching d.src beyond what Open already consumed.
func (d *Dumper) List() []PartitionInfo {
	return ListPartitions(d.Payload)
}

// ExtractMetadataFromArchive implements the --metadata CLI action (§4.7). It requires
// the original src (not the unwrapped payload view), since the metadata
// entry lives alongside payload.bin in the zip, not inside it.
func ExtractMetadataFromArchive(src ByteSource, outDir string) (string, error) {
	return ExtractMetadata(src, outDir)
}
