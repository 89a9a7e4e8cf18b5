package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/indexkit/indexkit/index"
)

var (
	// Global flags
	verbose   bool
	hashName  string
	maxDecode int
	log       *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "idxtool",
	Short: "Inspect and rewrite git index (staging) files",
	Long: `idxtool is a tool for inspecting, validating and rewriting git index
files. It decodes index versions 2-4 with all known extensions, verifies
structural invariants and the whole-file checksum, and can re-encode an
index for a different version or extension selection.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg = zap.NewDevelopmentConfig()
		}
		logger, err := cfg.Build()
		if err != nil {
			return err
		}
		log = logger.Sugar()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&hashName, "hash", "sha1", "Object format of the repository (sha1|sha256)")
	rootCmd.PersistentFlags().IntVar(&maxDecode, "parallel", 1, "Maximum decode parallelism when an offset table is present")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// decodeOptions derives DecodeOptions from the global flags.
func decodeOptions() (index.DecodeOptions, error) {
	var f index.ObjectFormat
	switch hashName {
	case "sha1":
		f = index.SHA1
	case "sha256":
		f = index.SHA256
	default:
		return index.DecodeOptions{}, fmt.Errorf("unknown object format %q", hashName)
	}
	return index.DecodeOptions{ObjectFormat: f, MaxParallel: maxDecode}, nil
}
