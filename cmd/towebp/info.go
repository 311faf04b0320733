package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/deepteams/webpconv/mux"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "display WebP container metadata",
		ArgsUsage: "<file.webp>...",
		Action:    runInfo,
	}
}

func runInfo(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("info: missing input file")
	}
	w := stdout(cmd)
	for i, path := range cmd.Args().Slice() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := describe(w, path); err != nil {
			return fmt.Errorf("info: %s: %w", path, err)
		}
	}
	return nil
}

func describe(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d, err := mux.NewDemuxer(data)
	if err != nil {
		return err
	}
	feat := d.GetFeatures()

	fmt.Fprintf(w, "File:       %s\n", path)
	fmt.Fprintf(w, "Format:     %s\n", feat.Format)
	fmt.Fprintf(w, "Dimensions: %d x %d\n", feat.Width, feat.Height)
	fmt.Fprintf(w, "Alpha:      %v\n", feat.HasAlpha)
	fmt.Fprintf(w, "Animation:  %v\n", feat.HasAnimation)
	if feat.HasAnimation {
		fmt.Fprintf(w, "Frames:     %d\n", d.NumFrames())
		loop := "infinite"
		if n := d.LoopCount(); n > 0 {
			loop = strconv.Itoa(n)
		}
		fmt.Fprintf(w, "Loop count: %s\n", loop)
		durations := make([]string, 0, d.NumFrames())
		for _, ms := range d.Durations() {
			durations = append(durations, strconv.Itoa(ms))
		}
		fmt.Fprintf(w, "Durations:  %s ms\n", strings.Join(durations, ", "))
	}
	fmt.Fprintf(w, "File size:  %s\n", humanize.IBytes(uint64(len(data))))
	return nil
}
