package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/local/pdfdesk/internal/config"
	"github.com/local/pdfdesk/internal/logger"
)

var (
	envFile  string
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfdesk",
	Short: "Merge, split, summarize and compare PDF documents",
	Long: `pdfdesk recomposes PDF documents page by page.

  merge  concatenates every page of several PDFs in the order given
  split  writes each page, or each requested range, to its own PDF in a zip
  serve  runs the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		loaded, err := config.Load(files...)
		if err != nil {
			return err
		}
		cfg = loaded

		opts := logger.OptionsFromConfig(cfg)
		if cmd.Name() != serveCmd.Name() {
			// one-shot commands log to stderr only
			opts.File = ""
			opts.SendToAxiom = false
			opts.Pretty = true
			opts.Output = os.Stderr
		}
		if logLevel != "" {
			opts.Level = logLevel
		}
		return logger.Init(opts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	rootCmd.AddCommand(mergeCmd, splitCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
