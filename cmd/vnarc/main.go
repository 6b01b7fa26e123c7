package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/harukana/vnarc/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	output       string
	workers      int
	nameEncoding string
	noCryptXOR   bool
	noCryptSwap  bool
	noCryptZlib  bool
	noUnwrapMDF  bool
	logLevel     string
	logFormat    string
	noProgress   bool
)

var rootCmd = &cobra.Command{
	Use:   "vnarc",
	Short: "Visual-novel archive extraction tool",
	Long: `vnarc opens the proprietary resource containers used by visual-novel
engines (BGI/Ethornell packs, Kirikiri XP3, Softpal PAC, ExHIBIT GRP
volumes) and exposes their entries as plain files, transparently
undoing segment compression and the per-entry cipher wrappers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("output") {
			cfg.Output = output
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if cmd.Flags().Changed("name-encoding") {
			cfg.NameEncoding = nameEncoding
		}
		if cmd.Flags().Changed("no-crypt-xor") {
			cfg.CryptXOR = !noCryptXOR
		}
		if cmd.Flags().Changed("no-crypt-swap") {
			cfg.CryptSwap = !noCryptSwap
		}
		if cmd.Flags().Changed("no-crypt-zlib") {
			cfg.CryptZlib = !noCryptZlib
		}
		if cmd.Flags().Changed("no-mdf") {
			cfg.UnwrapMDF = !noUnwrapMDF
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		slog.SetDefault(slog.New(handler))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is vnarc.yaml in pwd or home)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output directory for extracted entries")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of concurrent extraction workers")
	rootCmd.PersistentFlags().StringVar(&nameEncoding, "name-encoding", "", "entry name encoding (auto, utf8, cp932)")
	rootCmd.PersistentFlags().BoolVar(&noCryptXOR, "no-crypt-xor", false, "disable the threshold-XOR cipher transform")
	rootCmd.PersistentFlags().BoolVar(&noCryptSwap, "no-crypt-swap", false, "disable the bit-pair swap cipher transform")
	rootCmd.PersistentFlags().BoolVar(&noCryptZlib, "no-crypt-zlib", false, "disable the compressed cipher payload transform")
	rootCmd.PersistentFlags().BoolVar(&noUnwrapMDF, "no-mdf", false, "disable tagged zlib payload unwrapping")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
