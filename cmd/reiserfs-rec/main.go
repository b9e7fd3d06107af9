// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Command reiserfs-rec plans the recovery of a damaged ReiserFS v3
// device from a partial ddrescue image: it emits prioritized retry
// maps for the copying tool and offers best-effort views of whatever
// metadata is currently readable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/textui"
)

type subcommand struct {
	cobra.Command
	RunE func(fs *reiserfs.FS, cmd *cobra.Command, args []string) error
}

var subcommands []subcommand

var globalFlags struct {
	logLevel       textui.LogLevelFlag
	partitionStart uint64
}

// Set by main before any subcommand runs.
var imageFilename, mapFilename string

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s IMAGE MAPFILE [--partition-start N] COMMAND [args]\n",
			os.Args[0])
		fmt.Fprintf(os.Stderr, "Run '%s IMAGE MAPFILE help' for details\n", os.Args[0])
		os.Exit(1)
	}
	imageFilename = os.Args[1]
	mapFilename = os.Args[2]

	argparser := &cobra.Command{
		Use:   fmt.Sprintf("%s IMAGE MAPFILE", os.Args[0]),
		Short: "Plan and inspect the recovery of a damaged ReiserFS image",
		Long: "" +
			"IMAGE is a (partial) image of the device, as copied by ddrescue;\n" +
			"MAPFILE is the ddrescue map describing which byte ranges of the\n" +
			"image are trustworthy.  The bitmap/tree/folder commands write an\n" +
			"output map to stdout telling the copying tool which ranges to\n" +
			"retry next; maps should be re-generated as more of the disk is\n" +
			"recovered, since newly readable metadata unlocks more ranges.",

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(`{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`)

	globalFlags.logLevel.Level = dlog.LogLevelInfo
	argparser.PersistentFlags().Var(&globalFlags.logLevel, "verbosity",
		"set the verbosity")
	argparser.PersistentFlags().Uint64Var(&globalFlags.partitionStart, "partition-start", 0,
		"byte offset of the reiserfs partition within IMAGE, for full-disk images")

	for i := range subcommands {
		subcommand := &subcommands[i]
		runE := subcommand.RunE
		subcommand.Command.RunE = func(cmd *cobra.Command, args []string) error {
			// The log level is only known once flags are parsed.
			ctx := dlog.WithLogger(cmd.Context(),
				textui.NewLogger(os.Stderr, globalFlags.logLevel.Level))

			imageFile, err := os.Open(imageFilename)
			if err != nil {
				return err
			}
			defer imageFile.Close()

			rescueMap, err := ddrescue.ParseFile(mapFilename)
			if err != nil {
				return err
			}
			rescueMap.Offset = globalFlags.partitionStart

			fs := reiserfs.New(imageFile, rescueMap)
			fs.PartitionStart = globalFlags.partitionStart

			ctx = dlog.WithField(ctx, "rescue.cmd", cmd.Name())
			cmd.SetContext(ctx)
			return runE(fs, cmd, args)
		}
		argparser.AddCommand(&subcommand.Command)
	}

	ctx := context.Background()
	ctx = dlog.WithLogger(ctx, textui.NewLogger(os.Stderr, globalFlags.logLevel.Level))
	ctx = dgroup.WithGoroutineName(ctx, "/main")

	argparser.SetArgs(os.Args[3:])
	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
