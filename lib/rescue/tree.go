// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstree"
)

// Tree walks the B-tree and emits every sector the walk was obliged
// to consult, plus every sector of every data block referenced by the
// leaves' indirect items.  levelLimit prunes at and below that level:
// 0 covers file data, 1 restricts to metadata, higher levels unlock
// progressively more of the tree when retrying bad media.
//
// partialOnly is passed to ReadNode, which then skips recording each
// node's first sector; the nodes' other occupied sectors and the
// superblock sector are still emitted.
func Tree(ctx context.Context, fs *reiserfs.FS, w io.Writer, levelLimit int, partialOnly bool) error {
	sectors := new(reiserfs.SectorList)
	fs.Sectors = sectors
	fs.Incomplete = false

	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
	} else {
		stats, err := fs.WalkTree(ctx, levelLimit, partialOnly, func(node *reiserfstree.Node) error {
			if !node.Leaf() {
				return nil
			}
			blocks, err := node.IndirectItemBlocks()
			if err != nil {
				return nil
			}
			for _, block := range blocks {
				if block == 0 {
					// It's unclear why these exist. Maybe for sparse files?
					continue
				}
				for off := uint64(0); off < fs.SectorsPerBlock; off++ {
					sectors.Append(uint64(block)*fs.SectorsPerBlock + off)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		dlog.Infof(ctx, "found: %v", stats.Found)
		dlog.Infof(ctx, "incomplete: %v", stats.IncompleteCount)
		dlog.Infof(ctx, "partial: %v", stats.PartialCount)
	}

	return writeRangeList(w, fs, sectorsToRangeList(sectors.Sectors), reiserfs.SectorSize)
}
