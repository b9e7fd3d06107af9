// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Command ddrescue-map-image renders a ddrescue map file as a PPM
// image on stdout, colored by rescue status, for a quick visual
// overview of how a copy is progressing.
package main

import (
	"fmt"
	"os"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
)

func main() {
	var bytesPerPixel uint64
	argparser := &cobra.Command{
		Use:   fmt.Sprintf("%s MAPFILE > out.ppm", os.Args[0]),
		Short: "Render a ddrescue map file as a PPM image",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(_ *cobra.Command, args []string) error {
			rescueMap, err := ddrescue.ParseFile(args[0])
			if err != nil {
				return err
			}
			return ddrescue.WritePPM(os.Stdout, rescueMap, bytesPerPixel)
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.Flags().Uint64Var(&bytesPerPixel, "bytes-per-pixel", 128*4*512,
		"how many bytes of the device each pixel covers")

	if err := argparser.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
