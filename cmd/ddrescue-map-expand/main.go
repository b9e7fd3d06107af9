// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Command ddrescue-map-expand emits every finished range of a
// ddrescue map expanded by one sector on each side, in output-map
// format.  Feeding the result back to the copying tool retries the
// fringes of what has already been recovered, which often picks up
// marginal sectors.
package main

import (
	"fmt"
	"os"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
)

const expandAmount = 512

func main() {
	argparser := &cobra.Command{
		Use:   fmt.Sprintf("%s MAPFILE", os.Args[0]),
		Short: "Expand every finished range of a ddrescue map by one sector each way",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(_ *cobra.Command, args []string) error {
			rescueMap, err := ddrescue.ParseFile(args[0])
			if err != nil {
				return err
			}
			mapSize := rescueMap.Size()
			var l containers.RangeList
			last := uint64(0)
			rescueMap.ForEach(func(ent ddrescue.MapEntry) {
				if ent.Status != ddrescue.Finished {
					return
				}
				start := ent.Start
				if start > expandAmount {
					start -= expandAmount
				} else {
					start = 0
				}
				if start < last {
					start = last
				}
				end := ent.Start + ent.Size + expandAmount
				if end > mapSize {
					end = mapSize
				}
				last = end
				if err := l.Add(start, end-start); err != nil {
					panic(err) // starts are monotonic by construction
				}
			})
			return ddrescue.WriteRanges(os.Stdout, 0, 1, l.Items, mapSize)
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)

	if err := argparser.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
