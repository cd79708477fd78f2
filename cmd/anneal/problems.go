package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/annealer/internal/optimization/problem"
)

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the built-in benchmark problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLOWER\tUPPER\tMIN DIM")
		for _, name := range problem.Names() {
			b, _ := problem.Get(name)
			fmt.Fprintf(w, "%s\t%g\t%g\t%d\n", b.Name, b.Lower, b.Upper, b.MinDimension)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(problemsCmd)
}
