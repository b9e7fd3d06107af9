// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/rescue"
)

func init() {
	subcommands = append(subcommands, subcommand{
		Command: cobra.Command{
			Use:   "mount MOUNTPOINT",
			Short: "Mount the readable parts of the filesystem read-only",
			Long: "" +
				"Unrecovered metadata shows up as missing entries; file contents\n" +
				"are the same best-effort bytes that 'cat' produces.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error {
			deviceName := imageFilename
			if abs, err := filepath.Abs(deviceName); err == nil {
				deviceName = abs
			}
			return rescue.MountRO(cmd.Context(), fs, deviceName, args[0])
		},
	})
}
