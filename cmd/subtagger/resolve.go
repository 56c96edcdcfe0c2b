package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/subtagger/internal/probe"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

func newResolveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [node name...]",
		Short: "Print the tags each node would receive",
		Long: `resolve loads the probe result table once and prints, per node, the tags and
the display-name prefix the tagger would apply. With no arguments every node in
the table is listed. Unlike tag, an unavailable table is reported as an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.load()
			if err != nil {
				return err
			}
			defer rt.close()
			return runResolve(cmd.Context(), rt.source, rt.resolver, args, cmd.OutOrStdout())
		},
	}
}

func runResolve(ctx context.Context, src probe.Source, r *tagging.Resolver, names []string, w io.Writer) error {
	table, status := src.Fetch(ctx)
	if status != probe.StatusOK {
		return fmt.Errorf("probe table unavailable (%s)", status)
	}
	if len(names) == 0 {
		names = table.Names()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tTAGS\tPREFIX")
	for _, name := range names {
		rec, ok, err := table.Lookup(name)
		if err == nil && !ok {
			fmt.Fprintf(tw, "%s\t(no record)\t\n", name)
			continue
		}
		var tags []string
		if err == nil {
			tags, err = r.Resolve(name, rec)
		}
		if err != nil {
			fmt.Fprintf(tw, "%s\t(malformed: %v)\t\n", name, err)
			continue
		}
		if len(tags) == 0 {
			fmt.Fprintf(tw, "%s\t-\t\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, strings.Join(tags, ","), tagging.Prefix(tags))
	}
	return tw.Flush()
}
