package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ja7ad/retrofit/pkg/artifact"
)

func newStatusCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which artifacts are loaded and the effective ensemble weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			st := a.open().Status()
			if format != formatTable {
				return encode(cmd.OutOrStdout(), format, st)
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func printStatus(w io.Writer, st artifact.Status) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ARTIFACT\tSTATE\tPATH\tERROR")
	fmt.Fprintln(tw, "--------\t-----\t----\t-----")
	for _, r := range st.Artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.State, orDash(r.Path), orDash(r.Error))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "ensemble weights: A=%.4f B=%.4f (%s)\n",
		st.EffectiveWeights.A, st.EffectiveWeights.B, st.WeightSource)
	if !st.HasA && !st.HasB && st.SinglePath == nil {
		fmt.Fprintln(w, "no model loaded: predictions return a zero saving")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
