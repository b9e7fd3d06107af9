// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

// Folder traverses the named directories and emits the sectors needed
// to recover them and their descendants: the metadata sectors the
// traversal consulted and, unless metadataOnly, every data block of
// every regular file found.  A path prefixed with '-' excludes that
// subtree by object ID.
func Folder(ctx context.Context, fs *reiserfs.FS, w io.Writer, paths []string, metadataOnly bool) error {
	fs.Incomplete = false
	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
		return writeSuperblockRetryMap(w, fs)
	}

	sectors := new(reiserfs.SectorSet)
	fs.Sectors = sectors

	var queue []reiserfsprim.Key
	var errs derror.MultiError
	excludeIDs := make(containers.Set[reiserfsprim.ObjID])
	for _, path := range paths {
		exclude := strings.HasPrefix(path, "-")
		path = strings.TrimPrefix(path, "-")
		key, err := fs.PathToKey(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("could not find %v: %w", path, err))
			continue
		}
		if exclude {
			excludeIDs.Insert(key.ObjID)
		} else {
			queue = append(queue, key)
		}
	}
	if len(errs) > 0 {
		dlog.Errorln(ctx, errs)
		return nil
	}

	// Hard links can repeat blocks, so collect into a set.
	blocks := make(containers.Set[uint32])
	for len(queue) > 0 {
		key := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		item, err := fs.FindItem(ctx, key)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		stat, err := item.Stat()
		if err != nil {
			continue
		}
		switch stat.FileType {
		case reiserfsprim.FT_DIRECTORY:
			err := fs.DirectoryList(ctx, key, func(entry reiserfsitem.DirEntry) error {
				if entry.IsDot() || entry.IsDotDot() {
					return nil
				}
				if excludeIDs.Has(entry.ObjID) {
					return nil
				}
				queue = append(queue, reiserfsprim.Key{DirID: entry.DirID, ObjID: entry.ObjID,
					Type: reiserfsprim.STAT_KEY, Version: 2})
				return nil
			})
			if err != nil {
				return err
			}
		case reiserfsprim.FT_REGULAR:
			err := fs.FileIndirectBlocks(ctx, key, func(block uint32) error {
				if !metadataOnly && block != 0 {
					blocks.Insert(block)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}

	var all []uint64
	for block := range blocks {
		for off := uint64(0); off < fs.SectorsPerBlock; off++ {
			all = append(all, uint64(block)*fs.SectorsPerBlock+off)
		}
	}
	for sector := range sectors.Set {
		all = append(all, sector)
	}
	return writeRangeList(w, fs, sectorsToRangeList(all), reiserfs.SectorSize)
}
