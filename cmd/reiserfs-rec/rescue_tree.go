// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"strconv"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/rescue"
)

func init() {
	var metadataOnly bool
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "tree [LEVEL]",
			Short: "Emit a retry map of used blocks based on the b-tree",
			Long: "" +
				"This is moderate speed and ensures recovery time is only spent\n" +
				"on accessible data.  LEVEL limits results to that level and\n" +
				"higher: level 0 is file data, level 1 is file metadata, and\n" +
				"higher levels are used to discover lower levels.  Specifying\n" +
				"level 1 initially is a good idea, then proceeding to 0 after\n" +
				"level 1+ has been recovered.  When retrying bad blocks, focus\n" +
				"on higher levels (2+) first; they can \"unlock\" a substantial\n" +
				"amount of lower-level data.\n" +
				"\n" +
				"Re-run this as more higher-level blocks are recovered from disk\n" +
				"to provide more complete results.",
			Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			level := 0
			if len(args) > 0 {
				var err error
				level, err = strconv.Atoi(args[0])
				if err != nil {
					return cliutil.FlagErrorFunc(cmd, err)
				}
			}
			if metadataOnly && level < 1 {
				level = 1
			}
			return rescue.Tree(cmd.Context(), fs, os.Stdout, level, false)
		},
	}
	cmd.Command.Flags().BoolVar(&metadataOnly, "metadata", false,
		"restrict the output to metadata blocks (same as LEVEL >= 1)")
	subcommands = append(subcommands, cmd)
}
