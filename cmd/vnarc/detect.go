package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harukana/vnarc/internal/format"
)

var detectCmd = &cobra.Command{
	Use:   "detect <archive>",
	Short: "Report which container format claims a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, score, err := format.Detect(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (score %d)\n", f.Name, score)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
