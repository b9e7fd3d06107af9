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
			Use:   "bitmap",
			Short: "Emit a retry map of used blocks based on the free-space bitmaps",
			Long: "" +
				"This very quickly provides a view of used blocks and is a good\n" +
				"choice when the vast majority of data is readable.  Note that\n" +
				"data blocks may be thrown away during fsck if the file metadata\n" +
				"that references them has been lost.\n" +
				"\n" +
				"Re-run this as more bitmaps are recovered from disk to provide\n" +
				"more complete results.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, _ []string) error {
			return rescue.Bitmap(cmd.Context(), fs, os.Stdout, metadataOnly)
		},
	}
	cmd.Command.Flags().BoolVar(&metadataOnly, "metadata", false,
		"restrict the output to the superblock and bitmap blocks")
	subcommands = append(subcommands, cmd)
}
