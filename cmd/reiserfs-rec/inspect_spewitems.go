// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstree"
)

func init() {
	subcommands = append(subcommands, subcommand{
		Command: cobra.Command{
			Use:   "spew-items",
			Short: "Spew all reachable leaf items as parsed",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *reiserfs.FS, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := fs.Init(ctx); err != nil {
				return err
			}

			spew := spew.NewDefaultConfig()
			spew.DisablePointerAddresses = true

			return fs.IterLeafs(ctx, func(leaf *reiserfstree.Node) error {
				items, err := leaf.Items()
				if err != nil {
					dlog.Error(ctx, err)
					return nil
				}
				for _, item := range items {
					fmt.Printf("%v = ", item.Key)
					spew.Dump(item)
					os.Stdout.WriteString("\n")
				}
				return nil
			})
		},
	})
}
