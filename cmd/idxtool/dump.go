package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/indexkit/indexkit/index"
)

func init() {
	rootCmd.AddCommand(newDumpCmd())
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <index-file>",
		Short: "Print entries and extensions of an index file",
		Long: `The dump command decodes an index file and prints every entry with its
mode, stage and hash, followed by a summary of the extensions present.

Example:
  idxtool dump .git/index
  idxtool --hash sha256 --parallel 4 dump .git/index`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args[0])
		},
	}
}

func runDump(path string) error {
	opts, err := decodeOptions()
	if err != nil {
		return err
	}
	st, err := index.Open(path, opts)
	if err != nil {
		return err
	}
	log.Infow("decoded index",
		"path", path,
		"version", st.Version(),
		"entries", st.Len(),
		"hash", st.ObjectFormat().String(),
	)

	arena := st.Arena()
	for i := 0; i < st.Len(); i++ {
		e := st.Entry(i)
		fmt.Fprintf(os.Stdout, "%06o %x %d\t%s\n", e.Mode, e.Hash, e.Stage, e.PathIn(arena))
	}

	if t := st.TreeCache; t != nil {
		fmt.Fprintf(os.Stdout, "cache-tree: %d nodes\n", len(t.Nodes))
	}
	if ru := st.ResolveUndo; ru != nil {
		fmt.Fprintf(os.Stdout, "resolve-undo: %d paths\n", len(ru.Entries))
	}
	if uc := st.UntrackedCache; uc != nil {
		fmt.Fprintf(os.Stdout, "untracked-cache: %d dirs\n", len(uc.Dirs))
	}
	if m := st.FSMonitor; m != nil {
		fmt.Fprintf(os.Stdout, "fsmonitor: v%d, %d dirty\n", m.Version, m.Dirty.Popcount())
	}
	if l := st.Link; l != nil {
		fmt.Fprintf(os.Stdout, "link: base %x\n", l.BaseHash)
	}
	for _, o := range st.Opaque {
		fmt.Fprintf(os.Stdout, "opaque extension %s: %d bytes\n", o.Signature, len(o.Payload))
	}
	return nil
}
