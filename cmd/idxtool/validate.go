package main

import (
	"github.com/spf13/cobra"

	"github.com/indexkit/indexkit/index"
	"github.com/indexkit/indexkit/index/verify"
)

func init() {
	rootCmd.AddCommand(newValidateCmd())
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <index-file>",
		Short: "Check an index file against all structural invariants",
		Long: `The validate command decodes an index file (which already verifies the
checksum trailer, entry ordering and extension framing) and then checks the
decoded state: entry shape, and cache-tree consistency against the entries
it claims to cover.

Example:
  idxtool validate .git/index`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
}

func runValidate(path string) error {
	opts, err := decodeOptions()
	if err != nil {
		return err
	}
	st, err := index.Open(path, opts)
	if err != nil {
		return err
	}
	if err := verify.AllInvariants(st); err != nil {
		return err
	}
	log.Infow("index is valid", "path", path, "version", st.Version(), "entries", st.Len())
	return nil
}
