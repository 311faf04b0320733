package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/deepteams/webpconv/codec"
)

func backendsCommand() *cli.Command {
	return &cli.Command{
		Name:   "backends",
		Usage:  "list the available encoder backends",
		Action: runBackends,
	}
}

func runBackends(_ context.Context, cmd *cli.Command) error {
	tw := tabwriter.NewWriter(stdout(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODES\tDEFAULT")
	for _, name := range codec.Names() {
		enc, err := codec.Lookup(name)
		if err != nil {
			return err
		}
		modes := "lossless"
		if enc.Lossy() {
			modes = "lossy, lossless"
		}
		def := ""
		if name == codec.DefaultName() {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, modes, def)
	}
	return tw.Flush()
}
