// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
	"github.com/google/rescue-tools-reiserfs/lib/slices"
)

// Cat writes the file at path to w, truncated to the stat-reported
// size.  The output is best-effort: unrecovered regions come out as
// whatever the image holds (or zeros for lost items), so treat it as
// a debugging aid rather than a faithful copy.
func Cat(ctx context.Context, fs *reiserfs.FS, w io.Writer, path string) error {
	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
		return nil
	}

	key, err := fs.PathToKey(ctx, path)
	if err != nil {
		dlog.Errorf(ctx, "could not find %v", path)
		return nil
	}
	item, err := fs.FindItem(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		dlog.Errorf(ctx, "could not stat %v", path)
		return nil
	}
	stat, err := item.Stat()
	if err != nil {
		dlog.Errorf(ctx, "could not stat %v: %v", path, err)
		return nil
	}
	if stat.FileType != reiserfsprim.FT_REGULAR {
		dlog.Errorf(ctx, "%v not a regular file: %v", path, stat.FileType)
		return nil
	}
	expectedSize := stat.Size

	fs.Incomplete = false
	currentSize := uint64(0)
	err = fs.RegularBlockList(ctx, key, func(fb reiserfs.FileBlock) error {
		var toWrite []byte
		switch {
		case fb.Data != nil:
			toWrite = fb.Data
		case fb.Block == 0:
			// Sparse block.
			toWrite = make([]byte, fs.BlockSize)
		default:
			var err error
			toWrite, err = fs.ReadBlock(fb.Block)
			if err != nil {
				return err
			}
		}
		if currentSize >= expectedSize {
			return nil
		}
		toWrite = toWrite[:slices.Min(uint64(len(toWrite)), expectedSize-currentSize)]
		if _, err := w.Write(toWrite); err != nil {
			return err
		}
		currentSize += uint64(len(toWrite))
		return nil
	})
	if err != nil {
		return err
	}
	if currentSize < expectedSize {
		dlog.Warnf(ctx, "%v: wrote %v of %v bytes", path, currentSize, expectedSize)
	}
	return nil
}
