// Command edgeplan runs a machining job from the command line: it builds the
// path, simulates the cut and writes the requested exports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/opticam-labs/edgesim/internal/cam/blank"
	"github.com/opticam-labs/edgesim/internal/cam/export"
	"github.com/opticam-labs/edgesim/internal/cam/pipeline"
	"github.com/opticam-labs/edgesim/internal/cam/report"
	"github.com/opticam-labs/edgesim/internal/cam/storage/sqlite"
	"github.com/opticam-labs/edgesim/internal/config"
	"github.com/opticam-labs/edgesim/internal/monitoring"
	"github.com/opticam-labs/edgesim/internal/version"
)

var (
	jobFile       = flag.String("job", "", "Path to the job JSON file (required)")
	machineConfig = flag.String("machine-config", "", "Path to a machine config JSON file (default: reference machine)")
	outDir        = flag.String("out", "out", "Output directory for exports")
	resolution    = flag.Float64("resolution", 0, "Voxel resolution override in mm (0 = job/machine default)")
	stride        = flag.Int("stride", 0, "Frame stride override (0 = job/machine default)")
	workers       = flag.Int("workers", 0, "Simulation worker count (0 = all cores)")
	retime        = flag.Bool("retime", false, "Stretch frame times to honor removal-rate ceilings")
	writeCSV      = flag.Bool("csv", false, "Write the flattened path as CSV")
	writeJSON     = flag.Bool("json", false, "Write the path and segments as JSON")
	writePlots    = flag.Bool("plots", false, "Write volume and rate PNG plots")
	writeSTL      = flag.Bool("stl", false, "Write the uncut blank as binary STL")
	meshCells     = flag.Int("mesh-cells", 0, "STL tessellation cells along the longest axis (0 = preview default)")
	dbFile        = flag.String("db", "", "Persist the run into this SQLite database")
	debug         = flag.Bool("debug", false, "Enable verbose diagnostic logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// writeFile creates path and streams write into it.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgeplan %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *jobFile == "" {
		fmt.Fprintln(os.Stderr, "edgeplan: -job is required")
		flag.Usage()
		os.Exit(2)
	}

	monitoring.Debug = *debug

	job, err := pipeline.LoadJob(*jobFile)
	if err != nil {
		log.Fatalf("Failed to load job: %v", err)
	}

	var machine *config.Machine
	if *machineConfig != "" {
		machine, err = config.Load(*machineConfig)
		if err != nil {
			log.Fatalf("Failed to load machine config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		Resolution: *resolution,
		Stride:     *stride,
		Workers:    *workers,
		Retime:     *retime,
	}
	res, err := pipeline.Run(ctx, job, machine, opts)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	for _, pe := range res.Skipped {
		log.Printf("warning: %v", pe)
	}

	fmt.Println(export.Summary(res.Frames, res.Path.Segments).String())
	fmt.Printf("removed %.1f of %.1f mm³ (%.1f%%), peak rate %.1f mm³/s\n",
		res.Digest.RemovedVolume, res.Digest.InitialVolume,
		res.Digest.PercentComplete, res.Digest.PeakRate)
	if res.RetimedTimes != nil {
		fmt.Printf("retimed duration: %.1fs (as built %.1fs)\n",
			res.RetimedDuration(), res.Frames.Duration())
	}

	if *writeCSV || *writeJSON || *writePlots || *writeSTL {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatalf("Failed to create output dir: %v", err)
		}
	}
	if *writeCSV {
		path := filepath.Join(*outDir, "path.csv")
		if err := writeFile(path, func(w io.Writer) error {
			return export.WriteCSV(w, res.Frames)
		}); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		log.Printf("wrote %s", path)
	}
	if *writeJSON {
		path := filepath.Join(*outDir, "path.json")
		if err := writeFile(path, func(w io.Writer) error {
			return export.WriteJSON(w, res.Frames, res.Path.Segments, time.Now())
		}); err != nil {
			log.Fatalf("Failed to write JSON: %v", err)
		}
		log.Printf("wrote %s", path)
	}
	if *writePlots {
		if err := report.SavePlots(*outDir, res.History, res.Rates); err != nil {
			log.Fatalf("Failed to write plots: %v", err)
		}
		log.Printf("wrote %s and %s",
			filepath.Join(*outDir, "volume.png"), filepath.Join(*outDir, "rates.png"))
	}
	if *writeSTL {
		path := filepath.Join(*outDir, "blank.stl")
		if err := writeFile(path, func(w io.Writer) error {
			return blank.ExportSTL(w, res.Job.Blank, *meshCells)
		}); err != nil {
			log.Fatalf("Failed to write STL: %v", err)
		}
		log.Printf("wrote %s", path)
	}

	if *dbFile != "" {
		store, err := sqlite.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open run store: %v", err)
		}
		defer store.Close()

		rec, err := res.Record()
		if err != nil {
			log.Fatalf("Failed to flatten run: %v", err)
		}
		if err := store.InsertRun(&rec, res.Path.Segments); err != nil {
			log.Fatalf("Failed to persist run: %v", err)
		}
		log.Printf("run %s persisted to %s", rec.RunID, *dbFile)
	}
}
