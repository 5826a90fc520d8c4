// Command payload-dumper is the CLI front-end for the payload-dumper core:
// flag parsing, output-directory setup, and progress rendering are
// deliberately kept out of the core library (§1) and live here instead.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	dumper "github.com/xireiki/payload-dumper"
	"github.com/xireiki/payload-dumper/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		out          string
		diff         bool
		old          string
		partitionCSV string
		workers      int
		list         bool
		metadata     bool
	)

	flag.StringVar(&out, "out", ".", "output directory")
	flag.BoolVar(&diff, "diff", false, "differential mode")
	flag.StringVar(&old, "old", "old", "source-image directory for differential mode")
	flag.StringVar(&partitionCSV, "partitions", "", "comma-separated partition names to extract (default all)")
	flag.IntVar(&workers, "workers", dumper.DefaultWorkers(), "worker pool size")
	flag.BoolVar(&list, "list", false, "list partitions and exit")
	flag.BoolVar(&metadata, "metadata", false, "extract archive metadata and exit")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: payload-dumper [flags] <payloadfile|url>")
		flag.PrintDefaults()
		return 1
	}
	payloadFile := flag.Arg(0)

	if err := os.MkdirAll(out, 0o755); err != nil {
		logging.Errorf("creating output directory %s: %v", out, err)
		return 1
	}

	src, err := openInput(payloadFile)
	if err != nil {
		logging.Errorf("opening %s: %v", payloadFile, err)
		return 1
	}
	defer src.Close()

	if metadata {
		content, err := dumper.ExtractMetadataFromArchive(src, out)
		if err != nil {
			logging.Errorf("extracting metadata: %v", err)
			return 1
		}
		fmt.Println(content)
		fmt.Printf("\nMetadata saved to %s/metadata\n", out)
		return 0
	}

	var partitions []string
	if partitionCSV != "" {
		for _, p := range strings.Split(partitionCSV, ",") {
			partitions = append(partitions, strings.TrimSpace(p))
		}
	}

	d, err := dumper.Open(src, dumper.Config{
		OutDir:     out,
		Diff:       diff,
		OldDir:     old,
		Partitions: partitions,
		Workers:    workers,
	})
	if err != nil {
		logging.Errorf("parsing payload: %v", err)
		return 1
	}

	if list {
		infos := d.List()
		path, err := dumper.WritePartitionsInfo(out, infos)
		if err != nil {
			logging.Errorf("writing partitions info: %v", err)
			return 1
		}
		fmt.Println(dumper.CompactSummary(infos))
		fmt.Printf("\nPartition information saved to %s\n", path)
		return 0
	}

	bars := newPartitionBars()
	results, err := d.Extract(bars.start, bars.update)
	if err != nil {
		if errors.Is(err, dumper.ErrNoPartitionsSelected) {
			fmt.Println(err.Error())
			return 0
		}
		logging.Errorf("%v", err)
		return 1
	}

	logging.Infof("extracted %s across %d partitions", humanize.Bytes(totalExtractedBytes(d.List(), results)), len(results))

	return exitCodeFor(results)
}

// totalExtractedBytes sums the listed size (size_in_bytes: total destination
// blocks times block size) of every partition that extracted without error,
// for the closing summary line. Unlike
// partitions_info.json's size_readable (an exact "N.NMB" format, §8), this
// total is a plain human-friendly log line and has no exact-output
// requirement, so humanize.Bytes is used instead of extents.go's formatter.
func totalExtractedBytes(infos []dumper.PartitionInfo, results []dumper.PartitionResult) uint64 {
	ok := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Err == nil {
			ok[r.PartitionName] = true
		}
	}
	var total uint64
	for _, info := range infos {
		if ok[info.PartitionName] {
			total += info.SizeInBytes
		}
	}
	return total
}

// exitCodeFor maps the worst failure among per-partition results to the
// legacy exit codes named in §6: unsupported operation types and
// diff-mode mismatches are process-fatal conditions, everything else is a
// generic non-zero failure.
func exitCodeFor(results []dumper.PartitionResult) int {
	code := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		var unsupported *dumper.UnsupportedOperationError
		switch {
		case errors.As(r.Err, &unsupported):
			return -1
		case errors.Is(r.Err, dumper.ErrSourceCopyNotDifferential):
			return -2
		case errors.Is(r.Err, dumper.ErrSourceBSDiffNotDifferential):
			return -3
		default:
			code = 1
		}
	}
	return code
}

// openInput detects whether payloadFile is a URL or a local path and
// returns the matching ByteSource (§6). For URLs, a transient download bar
// is wired into the range reader's progress sink (§4.8).
func openInput(payloadFile string) (dumper.ByteSource, error) {
	if strings.HasPrefix(payloadFile, "http://") || strings.HasPrefix(payloadFile, "https://") {
		rf, err := dumper.NewHTTPRangeFile(payloadFile)
		if err != nil {
			return nil, err
		}
		rf.Progress = downloadProgress()
		return rf, nil
	}
	return dumper.OpenLocalFile(payloadFile)
}

// downloadProgress renders one transient bar per Read, closing it on
// completion, mirroring original_source's update_download_progress.
func downloadProgress() dumper.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(current, total int64) {
		if bar == nil && current != total {
			bar = progressbar.DefaultBytes(total, "download")
		}
		if bar == nil {
			return
		}
		bar.Set64(current)
		if current == total {
			bar.Close()
			bar = nil
		}
	}
}

// partitionBars is the progressbar-backed renderer implementing the core's
// ProgressUpdateFunc sink (§4.8, §9: "an opaque external collaborator").
type partitionBars struct {
	bars map[string]*progressbar.ProgressBar
}

func newPartitionBars() *partitionBars {
	return &partitionBars{bars: make(map[string]*progressbar.ProgressBar)}
}

// start creates a persistent bar sized to the partition's operation count,
// called serially before the worker pool starts (§4.8).
func (p *partitionBars) start(partitionName string, totalOps int) {
	p.bars[partitionName] = progressbar.Default(int64(totalOps), partitionName)
}

func (p *partitionBars) update(partitionName string, delta int) {
	if bar, ok := p.bars[partitionName]; ok {
		bar.Add(delta)
	}
}
