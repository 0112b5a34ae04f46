package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/perftools/symreport/internal/image"
	"github.com/perftools/symreport/internal/report"
	"github.com/perftools/symreport/internal/samples"
	"github.com/perftools/symreport/internal/symtab"
)

type options struct {
	imagePath   string
	samplesPath string
	kernel      bool
	excluded    []string
	symbol      string
	output      string
	format      string
	verbose     bool
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "symreport",
		Short:         "Attribute profiler samples to functions and source lines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&opts)
		},
	}

	rootCmd.Flags().StringVar(&opts.imagePath, "image", "", "binary image the samples were captured against")
	rootCmd.Flags().StringVar(&opts.samplesPath, "samples", "", "sample file to attribute")
	rootCmd.Flags().BoolVar(&opts.kernel, "kernel", false, "treat the image as a kernel or module (samples are code-section offsets)")
	rootCmd.Flags().StringSliceVar(&opts.excluded, "exclude", nil, "symbol names to omit from attribution (repeatable)")
	rootCmd.Flags().StringVar(&opts.symbol, "symbol", "", "report only samples within this symbol")
	rootCmd.Flags().StringVar(&opts.output, "output", "", "output file (default stdout)")
	rootCmd.Flags().StringVar(&opts.format, "format", "table", "output format: table, pprof, otlp or folded")
	rootCmd.Flags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	rootCmd.MarkFlagRequired("image")
	rootCmd.MarkFlagRequired("samples")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("symreport failed", "error", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	sf, err := samples.Read(opts.samplesPath)
	if err != nil {
		return err
	}

	img, err := image.Open(opts.imagePath, opts.kernel || sf.Header.Kernel, sf.Header.Mtime, sf.Header.NrSamples)
	if err != nil {
		return err
	}
	defer img.Close()

	metrics := symtab.NewMetrics(prometheus.NewRegistry())
	tbl := symtab.Build(img, excludeSet(opts.excluded), metrics)
	if tbl.Empty() {
		slog.Warn("Image carries no usable symbols; falling back to whole-image attribution", "image", opts.imagePath)
	}

	counts := sf.Counts()
	// Kernel and module samples are offsets into the code section; rebase
	// them to absolute file offsets before resolving.
	if off := img.SectOffset(); off != 0 {
		rebased := make(map[uint64]uint64, len(counts))
		for o, c := range counts {
			rebased[o+off] = c
		}
		counts = rebased
	}
	if opts.symbol != "" {
		counts, err = filterToSymbol(tbl, counts, opts.symbol)
		if err != nil {
			return err
		}
	}

	att, err := report.Attribute(tbl, counts, opts.imagePath)
	if err != nil {
		return err
	}

	return write(opts, att)
}

func excludeSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// filterToSymbol keeps only the sample offsets that fall within the named
// symbol's range.
func filterToSymbol(tbl *symtab.Table, counts map[uint64]uint64, name string) (map[uint64]uint64, error) {
	idx := tbl.IndexOf(name)
	if idx < 0 {
		return nil, fmt.Errorf("symbol %q not found in image", name)
	}
	start, end, err := tbl.Range(idx)
	if err != nil {
		return nil, err
	}
	filtered := make(map[uint64]uint64)
	for off, cnt := range counts {
		if off >= start && off < end {
			filtered[off] = cnt
		}
	}
	return filtered, nil
}

func write(opts *options, att *report.Attribution) error {
	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch opts.format {
	case "table":
		return report.WriteTable(out, att)
	case "pprof":
		return report.WriteProfile(report.BuildPprofProfile(att, "samples", "count"), out)
	case "otlp":
		data, err := report.MarshalOtlpProfile(report.BuildOtlpProfile(att, func() uint64 { return uint64(time.Now().UnixNano()) }))
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "folded":
		return report.WriteFoldedStacks(out, att)
	default:
		return fmt.Errorf("unknown output format %q", opts.format)
	}
}
