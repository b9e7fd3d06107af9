// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/rescue"
)

func init() {
	var recurse bool
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "ls PATH",
			Short: "List the contents of the directory found via PATH, denoting incomplete files",
			Long: "" +
				"PATH must either be absolute or start with a directory in the\n" +
				"form used by lost+found (e.g., 1337_1338/some/folder).  This is\n" +
				"useful for looking through the disk without running fsck and\n" +
				"checking the recovery status of individual files.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			return rescue.Ls(cmd.Context(), fs, os.Stdout, args[0], recurse)
		},
	}
	cmd.Command.Flags().BoolVarP(&recurse, "recursive", "R", false,
		"include transitive contents")
	subcommands = append(subcommands, cmd)
}
