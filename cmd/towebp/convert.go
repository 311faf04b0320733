package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/deepteams/webpconv"
	"github.com/deepteams/webpconv/internal/archive"
	"github.com/deepteams/webpconv/internal/config"
	"github.com/deepteams/webpconv/internal/server"
	"github.com/deepteams/webpconv/internal/sink"
)

func convertCommand() *cli.Command {
	flags := append(encodingFlags(),
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory (default: next to each input)"},
		&cli.StringFlag{Name: "zip", Usage: "write every result into this zip file"},
		&cli.StringFlag{Name: "s3-bucket", Usage: "upload results to this bucket"},
		&cli.StringFlag{Name: "s3-prefix", Usage: "key prefix inside the bucket"},
		&cli.BoolFlag{Name: "json", Usage: "print the report as JSON"},
	)
	return &cli.Command{
		Name:      "convert",
		Usage:     "convert images to WebP",
		ArgsUsage: "<file|dir>...",
		Flags:     flags,
		Action:    runConvert,
	}
}

func runConvert(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("convert: no input files")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("out") {
		cfg.Output.Dir = cmd.String("out")
	}
	if cmd.IsSet("zip") {
		cfg.Output.Zip = cmd.String("zip")
	}
	if cmd.IsSet("s3-bucket") {
		cfg.S3.Bucket = cmd.String("s3-bucket")
	}
	if cmd.IsSet("s3-prefix") {
		cfg.S3.Prefix = cmd.String("s3-prefix")
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	srcs, err := collectSources(cmd.Args().Slice())
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts.Logger = log
	conv := webpconv.New(opts)

	report, convErr := conv.ConvertAll(ctx, srcs, cfg.Policy())
	locations, err := deliver(ctx, cfg, report.Results)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := printJSON(stdout(cmd), report, locations); err != nil {
			return err
		}
	} else {
		printReport(stdout(cmd), report, locations)
	}

	if convErr != nil {
		return convErr
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed(), len(srcs))
	}
	return nil
}

// collectSources reads every named file. Directories are walked and only
// files with a PNG, JPEG or GIF extension are taken from them.
func collectSources(args []string) ([]webpconv.Source, error) {
	var paths []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && webpconv.FormatFromName(path) != webpconv.FormatGeneric {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("convert: no convertible images found")
	}

	srcs := make([]webpconv.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, webpconv.Source{Name: p, Data: data})
	}
	return srcs, nil
}

// deliver stores results according to cfg and returns one location per
// result. Priority: zip file, S3 bucket, output directory, next to input.
func deliver(ctx context.Context, cfg *config.Config, results []*webpconv.Result) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}
	switch {
	case cfg.Output.Zip != "":
		return writeZip(cfg.Output.Zip, results)
	case cfg.S3Enabled():
		s, err := sink.NewS3(ctx, sink.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return sink.Deliver(ctx, s, results)
	case cfg.Output.Dir != "":
		d, err := sink.NewDir(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		return sink.Deliver(ctx, d, results)
	}
	return writeBesideInputs(ctx, results)
}

func writeZip(path string, results []*webpconv.Result) ([]string, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	entries := archive.FromResults(results)
	if err := archive.Write(f, entries); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	locations := archive.UniqueNames(names)
	for i := range locations {
		locations[i] = path + ":" + locations[i]
	}
	return locations, nil
}

// writeBesideInputs groups results by source directory so names are
// deduplicated per directory.
func writeBesideInputs(ctx context.Context, results []*webpconv.Result) ([]string, error) {
	groups := make(map[string][]int)
	var dirs []string
	for i, r := range results {
		dir := filepath.Dir(r.Stats.Filename)
		if _, ok := groups[dir]; !ok {
			dirs = append(dirs, dir)
		}
		groups[dir] = append(groups[dir], i)
	}

	locations := make([]string, len(results))
	for _, dir := range dirs {
		d, err := sink.NewDir(dir)
		if err != nil {
			return nil, err
		}
		idx := groups[dir]
		group := make([]*webpconv.Result, len(idx))
		for j, i := range idx {
			group[j] = results[i]
		}
		locs, err := sink.Deliver(ctx, d, group)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			locations[i] = locs[j]
		}
	}
	return locations, nil
}

func printReport(w io.Writer, report *webpconv.Report, locations []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tFORMAT\tSIZE\tWEBP\tREDUCTION\tCOMPRESSION\tOUTPUT")
	for i, r := range report.Results {
		s := r.Stats
		out := r.OutputName()
		if i < len(locations) {
			out = locations[i]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
			s.Filename, s.Format,
			humanize.IBytes(uint64(s.OriginalSize)), humanize.IBytes(uint64(s.EncodedSize)),
			s.Reduction, s.Compression, out)
	}
	tw.Flush()

	for _, f := range report.Failures {
		fmt.Fprintf(w, "FAILED %s: %v\n", f.Filename, f.Err)
	}
	if report.Skipped > 0 {
		fmt.Fprintf(w, "skipped %d files\n", report.Skipped)
	}

	fmt.Fprintf(w, "\n%d converted, %d failed: %s -> %s (%.1f%% smaller)\n",
		report.Succeeded(), report.Failed(),
		humanize.IBytes(uint64(report.TotalOriginal)), humanize.IBytes(uint64(report.TotalEncoded)),
		report.Reduction())
	if counts := report.FormatCounts(); len(counts) > 0 {
		parts := make([]string, 0, len(counts))
		for _, k := range slices.Sorted(maps.Keys(counts)) {
			parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
		}
		fmt.Fprintf(w, "formats: %s\n", strings.Join(parts, ", "))
	}
}

func printJSON(w io.Writer, report *webpconv.Report, locations []string) error {
	out := struct {
		server.ReportJSON
		Outputs []string `json:"outputs"`
	}{
		ReportJSON: server.NewReportJSON("", report),
		Outputs:    locations,
	}
	if out.Outputs == nil {
		out.Outputs = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
