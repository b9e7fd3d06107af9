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
			Use:   "find NAME",
			Short: "Find files with name NAME",
			Long: "" +
				"Scans every readable leaf, so it also finds directories that\n" +
				"are no longer reachable from the root and would exist in\n" +
				"lost+found after an fsck.  For example, home directories can be\n" +
				"found by searching for '.bashrc'.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			return rescue.Find(cmd.Context(), fs, os.Stdout, args[0])
		},
	})
}
