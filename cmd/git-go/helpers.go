package main

import (
	"fmt"
	"io"

	git "gitgo"
	"gitgo/ginternals/config"
	"gitgo/ginternals/object"
)

func loadRepository(cfg *globalFlags) (*git.Repository, error) {
	p, err := config.LoadConfig(cfg.env, config.LoadConfigOptions{
		WorkingDirectory: cfg.C.String(),
		GitDirPath:       cfg.GitDir,
		WorkTreePath:     cfg.WorkTree,
		IsBare:           cfg.Bare,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create param: %w", err)
	}

	// run the command
	return git.OpenRepositoryWithParams(p, git.OpenOptions{
		IsBare: cfg.Bare,
	})
}

// authorSignature builds the Signature used for new commits from
// GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL, falling back to a generic identity
// when the environment doesn't set them.
func authorSignature(cfg *globalFlags) object.Signature {
	name := cfg.env.Get("GIT_AUTHOR_NAME")
	if name == "" {
		name = "git-go"
	}
	email := cfg.env.Get("GIT_AUTHOR_EMAIL")
	if email == "" {
		email = "git-go@localhost"
	}
	return object.NewSignature(name, email)
}

func fprintln(quiet bool, out io.Writer, msg ...interface{}) {
	if !quiet {
		fmt.Fprintln(out, msg...)
	}
}

func fprintf(quiet bool, out io.Writer, format string, a ...interface{}) {
	if !quiet {
		fmt.Fprintf(out, format, a...)
	}
}
