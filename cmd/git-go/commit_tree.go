package main

import (
	"fmt"
	"io"

	"gitgo/ginternals"
	"gitgo/ginternals/object"
	"gitgo/internal/errutil"
	"github.com/spf13/cobra"
)

func newCommitTreeCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit-tree TREE-HEX",
		Short: "Create a new commit from a tree object",
		Args:  cobra.ExactArgs(1),
	}

	parents := cmd.Flags().StringArrayP("parent", "p", nil, "ID of a parent commit object.")
	message := cmd.Flags().StringP("message", "m", "", "A paragraph in the commit log message.")
	if err := cmd.MarkFlagRequired("message"); err != nil {
		panic(err)
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return commitTreeCmd(cmd.OutOrStdout(), cfg, args[0], *parents, *message)
	}
	return cmd
}

func commitTreeCmd(out io.Writer, cfg *globalFlags, treeHex string, parentHexes []string, message string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	treeOid, err := ginternals.NewOidFromStr(treeHex)
	if err != nil {
		return err
	}
	tree, err := r.GetTree(treeOid)
	if err != nil {
		return err
	}

	parentIDs := make([]ginternals.Oid, 0, len(parentHexes))
	for _, p := range parentHexes {
		oid, err := ginternals.NewOidFromStr(p)
		if err != nil {
			return err
		}
		parentIDs = append(parentIDs, oid)
	}

	author := authorSignature(cfg)
	c, err := r.NewDetachedCommit(tree, author, &object.CommitOptions{
		Message:   message,
		ParentsID: parentIDs,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, c.ID().String())
	return nil
}
