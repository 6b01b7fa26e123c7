package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harukana/vnarc/internal/format"
)

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := format.Open(args[0], cfg.Options())
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(w, "NAME\tSIZE\n")
		for _, e := range a.Entries() {
			fmt.Fprintf(w, "%s\t%d\n", e.Name, e.Size)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%s: %d entries\n", a.FormatName(), a.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
