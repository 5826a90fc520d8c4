package dumper

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/xireiki/payload-dumper/internal/logging"
	"github.com/xireiki/payload-dumper/internal/manifest"
)

// OperationWithData pairs a decoded operation with its pre-loaded payload
// data slice.
type OperationWithData struct {
	Op   manifest.InstallOperation
	Data []byte
}

// PartitionWork is one partition's worth of pre-loaded operations, ready to
// hand to the worker pool.
type PartitionWork struct {
	Partition  manifest.PartitionUpdate
	Operations []OperationWithData
}

// PreloadOperations runs the serial pre-load phase (§4.6): for every
// selected partition's every operation, seek src to the operation's data
// slice within the data region and read it fully into memory. src is not
// closed here — the caller closes it once, after the last partition has
// been pre-loaded, per the lifecycle in §3.
func PreloadOperations(src ByteSource, dataOffset int64, partitions []manifest.PartitionUpdate) ([]PartitionWork, error) {
	work := make([]PartitionWork, 0, len(partitions))
	for _, pu := range partitions {
		ops := make([]OperationWithData, 0, len(pu.Operations))
		for _, op := range pu.Operations {
			buf := make([]byte, op.DataLength)
			if op.DataLength > 0 {
				if _, err := src.Seek(dataOffset+int64(op.DataOffset), io.SeekStart); err != nil {
					return nil, fmt.Errorf("preload: seeking %s operation data: %w", pu.PartitionName, err)
				}
				if _, err := io.ReadFull(src, buf); err != nil {
					return nil, fmt.Errorf("preload: reading %s operation data: %w", pu.PartitionName, err)
				}
			}
			ops = append(ops, OperationWithData{Op: op, Data: buf})
		}
		work = append(work, PartitionWork{Partition: pu, Operations: ops})
	}
	return work, nil
}

// ProgressUpdateFunc is the per-partition-operation sink: called with the
// partition name and a delta of 1 after each operation applies (§4.8).
type ProgressUpdateFunc func(partitionName string, delta int)

// ProgressStartFunc is called once per partition, serially, before any
// worker touches it — with the partition name and its total operation
// count, so a renderer can create a persistent bar up front the way
// original_source's Dumper.multiprocess_partitions does (§4.8, §5:
// "the core serialises counter creation during the pre-load phase to
// avoid races").
type ProgressStartFunc func(partitionName string, totalOps int)

// RunPool dispatches each partition as an independent task to a pool of W
// workers (ants-backed, §4.6). Failures in one partition are isolated: the
// error is recorded and returned, but other partitions continue running.
// The returned slice has one entry per input partition, in the same order,
// with a nil error for partitions that succeeded.
func RunPool(work []PartitionWork, blockSize uint32, outDir string, diffMode bool, oldDir string, workers int, onStart ProgressStartFunc, progress ProgressUpdateFunc) []error {
	errs := make([]error, len(work))

	if onStart != nil {
		for _, w := range work {
			onStart(w.Partition.PartitionName, len(w.Operations))
		}
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("pool: creating worker pool: %w", err)
		}
		return errs
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, w := range work {
		i, w := i, w
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := dumpPartition(w, blockSize, outDir, diffMode, oldDir, progress); err != nil {
				errs[i] = err
				logging.Errorf("%s: %v", w.Partition.PartitionName, err)
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("pool: submitting %s: %w", w.Partition.PartitionName, submitErr)
		}
	}
	wg.Wait()

	return errs
}

func dumpPartition(w PartitionWork, blockSize uint32, outDir string, diffMode bool, oldDir string, progress ProgressUpdateFunc) error {
	name := w.Partition.PartitionName
	outPath := filepath.Join(outDir, name+".img")

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	var source *SourceImage
	if diffMode {
		oldPath := filepath.Join(oldDir, name+".img")
		source, err = OpenSourceImage(oldPath)
		if err != nil {
			return fmt.Errorf("opening source image for %s: %w", name, err)
		}
		defer source.Close()
	}

	for _, owd := range w.Operations {
		if err := ApplyOperation(out, owd.Op, owd.Data, blockSize, diffMode, source); err != nil {
			return fmt.Errorf("applying %s operation: %w", owd.Op.Type, err)
		}
		if progress != nil {
			progress(name, 1)
		}
	}
	return nil
}
