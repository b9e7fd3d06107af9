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
	var metadataOnly bool
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "folder PATH...",
			Short: "Emit a retry map for PATH and its descendants",
			Long: "" +
				"This allows recovering specific data, but can be slow as it\n" +
				"needs to be run many times as the directory structure is\n" +
				"recovered.  Multiple paths may be specified; a path prefixed\n" +
				"with dash ('-') is excluded.\n" +
				"\n" +
				"Re-run this as more directories are recovered from disk.  If\n" +
				"'tree 1' has been fully recovered, reruns are unnecessary.",
			Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			return rescue.Folder(cmd.Context(), fs, os.Stdout, args, metadataOnly)
		},
	}
	cmd.Command.Flags().BoolVar(&metadataOnly, "metadata", false,
		"restrict the output to metadata; skip the files' data blocks")
	subcommands = append(subcommands, cmd)
}
