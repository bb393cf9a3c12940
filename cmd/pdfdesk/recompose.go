package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/local/pdfdesk/internal/app"
	"github.com/local/pdfdesk/internal/recompose"
)

var (
	mergeOut string
	mergeMin int

	splitOut    string
	splitRanges string
)

var mergeCmd = &cobra.Command{
	Use:   "merge FILE...",
	Short: "Concatenate PDFs into one document",
	Long: `Concatenate every page of every input, in the order given, into one PDF.

Examples:
  pdfdesk merge -o merged.pdf a.pdf b.pdf
  pdfdesk merge --min 1 -o copy.pdf a.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := readSources(args)
		if err != nil {
			return err
		}
		conf := cfg.Recompose
		if cmd.Flags().Changed("min") {
			conf.MinMergeFiles = mergeMin
		}

		res, err := app.NewEngine(conf).Merge(cmd.Context(), sources)
		if err != nil {
			return userError(err)
		}
		out := mergeOut
		if out == "" {
			out = res.Filename
		}
		return writeResult(cmd, out, res)
	},
}

var splitCmd = &cobra.Command{
	Use:   "split FILE",
	Short: "Split a PDF into a zip of smaller documents",
	Long: `Write every page, or every requested range, of a PDF to its own document
and pack them into a zip archive.

Examples:
  pdfdesk split report.pdf                      # report_pages.zip with page_1.pdf ...
  pdfdesk split --ranges 1-3,4-6 -o parts.zip report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := readSources(args)
		if err != nil {
			return err
		}
		ranges, err := recompose.ParseRanges(splitRanges)
		if err != nil {
			return userError(err)
		}

		res, err := app.NewEngine(cfg.Recompose).SplitRanges(cmd.Context(), sources[0], ranges)
		if err != nil {
			return userError(err)
		}
		out := splitOut
		if out == "" {
			out = res.Filename
		}
		return writeResult(cmd, out, res)
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "output file (default: merged.pdf)")
	mergeCmd.Flags().IntVar(&mergeMin, "min", 2, "minimum number of input files")

	splitCmd.Flags().StringVarP(&splitOut, "out", "o", "", "output file (default: <name>_pages.zip)")
	splitCmd.Flags().StringVar(&splitRanges, "ranges", "", "page ranges such as 1-3,5")
}

func readSources(paths []string) ([]recompose.Source, error) {
	sources := make([]recompose.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, recompose.Source{Name: filepath.Base(p), Data: data})
	}
	return sources, nil
}

func writeResult(cmd *cobra.Command, out string, res recompose.Result) error {
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages", out, res.Pages)
	if len(res.Entries) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d entries", len(res.Entries))
	}
	fmt.Fprintln(cmd.OutOrStdout(), ")")
	return nil
}

// userError drops library causes from engine failures.
func userError(err error) error {
	return fmt.Errorf("%s: %s", recompose.KindName(err), recompose.UserMessage(err))
}
