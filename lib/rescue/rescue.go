// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package rescue holds the traversal drivers that walk whatever parts
// of the filesystem are readable and emit prioritized byte-range maps
// for the copying tool to retry, plus the human-oriented ls/cat/find
// renderers and the read-only FUSE mount.
package rescue

import (
	"io"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/slices"
)

// writeRangeList prints a driver's result map.  Range units are
// scaled by mult into bytes; the output always covers the whole
// rescue map.
func writeRangeList(w io.Writer, fs *reiserfs.FS, l containers.RangeList, mult uint64) error {
	return ddrescue.WriteRanges(w, fs.PartitionStart, mult, l.Items, fs.RescueMap.Size())
}

// sectorsToRangeList coalesces a sector list (sorted, duplicates
// dropped) into ranges.
func sectorsToRangeList(sectors []uint64) containers.RangeList {
	var l containers.RangeList
	for _, sector := range slices.SortedUniq(sectors) {
		// Cannot fail: input is strictly increasing.
		_ = l.Add(sector, 1)
	}
	return l
}

// writeSuperblockRetryMap is the degenerate output when the
// superblock itself cannot be trusted: ask the copying tool for just
// the superblock sector.
func writeSuperblockRetryMap(w io.Writer, fs *reiserfs.FS) error {
	var l containers.RangeList
	_ = l.Add(reiserfs.SuperblockByteOffset, reiserfs.SectorSize)
	return writeRangeList(w, fs, l, 1)
}
