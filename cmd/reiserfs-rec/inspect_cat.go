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
	subcommands = append(subcommands, subcommand{
		Command: cobra.Command{
			Use:   "cat PATH",
			Short: "Dump file contents to standard out",
			Long: "" +
				"Intended to allow reading a few files without needing to run\n" +
				"fsck.  Do not fully trust the output; consider it a debug or\n" +
				"quick-and-dirty tool.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			return rescue.Cat(cmd.Context(), fs, os.Stdout, args[0])
		},
	})
}
