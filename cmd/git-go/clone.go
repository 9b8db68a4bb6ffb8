package main

import (
	"io"

	git "gitgo"
	"gitgo/internal/errutil"
	"github.com/spf13/cobra"
)

// cloneCmdFlags represents the flags accepted by the clone command
type cloneCmdFlags struct {
	quiet bool
}

func newCloneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone URL DIR",
		Short: "Clone a repository into a new directory over the smart HTTP protocol",
		Args:  cobra.ExactArgs(2),
	}

	flags := cloneCmdFlags{}
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Operate quietly. Progress is not reported to the standard error stream.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cloneCmd(cmd.OutOrStdout(), flags, args[0], args[1])
	}
	return cmd
}

func cloneCmd(out io.Writer, flags cloneCmdFlags, url, dir string) (err error) {
	fprintf(flags.quiet, out, "Cloning into '%s'...\n", dir)

	r, err := git.Clone(url, dir, nil)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	return nil
}
