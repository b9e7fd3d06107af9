// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstree"
)

// Bitmap walks the free-space bitmaps and emits one-block ranges for
// every in-use block.  The first bitmap block is the block after the
// superblock; further ones come every blocksize*8 blocks.  Unreadable
// bitmap blocks are emitted themselves so the copying tool retries
// them, and their bits are skipped.
//
// metadataOnly restricts the output to the superblock and the bitmap
// blocks.
func Bitmap(ctx context.Context, fs *reiserfs.FS, w io.Writer, metadataOnly bool) error {
	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
		return writeSuperblockRetryMap(w, fs)
	}

	sbBlock := uint64(reiserfstree.SuperblockOffset) / fs.BlockSize
	blockCount := uint64(fs.Superblock.BlockCount)
	bitmapStride := fs.BlockSize * 8

	var l containers.RangeList
	if metadataOnly {
		_ = l.Add(sbBlock, 1)
		_ = l.Add(sbBlock+1, 1)
		for pos := bitmapStride; pos < blockCount; pos += bitmapStride {
			_ = l.Add(pos, 1)
		}
		return writeRangeList(w, fs, l, fs.BlockSize)
	}

	if err := scanBitmapBlock(ctx, fs, &l, sbBlock+1, 0); err != nil {
		return err
	}
	for pos := bitmapStride; pos < blockCount; pos += bitmapStride {
		if err := scanBitmapBlock(ctx, fs, &l, pos, pos); err != nil {
			return err
		}
	}
	return writeRangeList(w, fs, l, fs.BlockSize)
}

// scanBitmapBlock handles one bitmap block: block is where it lives,
// base is the first filesystem block its bits describe.
func scanBitmapBlock(ctx context.Context, fs *reiserfs.FS, l *containers.RangeList, block, base uint64) error {
	status, err := fs.RescueMap.Get(block * fs.BlockSize)
	if err != nil || status != ddrescue.Finished {
		if err := l.Add(block, 1); err != nil {
			dlog.Warnf(ctx, "bitmap block %v: %v", block, err)
		}
		return nil
	}
	dat, err := fs.ReadBlock(uint32(block))
	if err != nil {
		dlog.Errorf(ctx, "bitmap block %v: %v", block, err)
		return l.Add(block, 1)
	}
	markUsed(l, base, dat)
	return nil
}

func markUsed(l *containers.RangeList, base uint64, bitmap []byte) {
	for i, b := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				// Runs of used blocks coalesce.
				_ = l.Add(base+uint64(i)*8+uint64(bit), 1)
			}
		}
	}
}
