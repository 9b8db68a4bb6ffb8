package main

import (
	"fmt"
	"io"

	"gitgo/ginternals"
	"gitgo/internal/errutil"
	"github.com/spf13/cobra"
)

func newLsTreeCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-tree HEX-ID",
		Short: "List the contents of a tree object",
		Args:  cobra.ExactArgs(1),
	}

	nameOnly := cmd.Flags().Bool("name-only", false, "List only filenames instead of the full mode/type/oid/name line.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return lsTreeCmd(cmd.OutOrStdout(), cfg, args[0], *nameOnly)
	}
	return cmd
}

func lsTreeCmd(out io.Writer, cfg *globalFlags, hexID string, nameOnly bool) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	oid, err := ginternals.NewOidFromStr(hexID)
	if err != nil {
		return err
	}

	t, err := r.GetTree(oid)
	if err != nil {
		return err
	}

	for _, e := range t.Entries() {
		if nameOnly {
			fmt.Fprintln(out, e.Path)
			continue
		}
		fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), e.Path)
	}
	return nil
}
