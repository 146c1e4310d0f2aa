// Command gridtool inspects gridstore raster files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/gridstore"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridtool",
		Short: "Inspect gridstore raster files.",
		Long: `gridtool prints the specification, storage statistics, and codec
statistics of a gridstore raster file without modifying it.`,
	}

	infoCmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print the file specification and element declarations.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return summarize(args[0], false)
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary <file>",
		Short: "Print storage and codec statistics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return summarize(args[0], verbose)
		},
	}
	summaryCmd.Flags().BoolVarP(&verbose, "verbose", "v", true,
		"walk every compressed tile and report per-codec entropy")

	rootCmd.AddCommand(infoCmd, summaryCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func summarize(path string, verbose bool) error {
	gf, err := gridstore.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer gf.Close()

	return gf.Summarize(os.Stdout, verbose)
}
