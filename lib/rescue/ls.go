// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

// Ls lists the directory at path, annotating entries whose metadata
// or data is not fully recovered.  With recurse, transitive contents
// are listed with full path prefixes.
func Ls(ctx context.Context, fs *reiserfs.FS, w io.Writer, path string, recurse bool) error {
	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
		return nil
	}

	dirKey, err := fs.PathToKey(ctx, path)
	if err != nil {
		dlog.Errorf(ctx, "could not find %v", path)
		return nil
	}
	item, err := fs.FindItem(ctx, dirKey)
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
	switch stat.FileType {
	case reiserfsprim.FT_REGULAR:
		dlog.Infof(ctx, "%v (normal file)", path)
		return nil
	case reiserfsprim.FT_LINK:
		dlog.Infof(ctx, "%v (symbolic link)", path)
		return nil
	case reiserfsprim.FT_DIRECTORY:
		// fall through
	default:
		dlog.Infof(ctx, "%v (special file)", path)
		return nil
	}

	// The directory's own name comes from its parent, found via the
	// '..' entry (one of the first two).
	var dirName []byte
	count := 0
	_ = fs.DirectoryList(ctx, dirKey, func(entry reiserfsitem.DirEntry) error {
		count++
		if count > 2 {
			return errStopLs
		}
		if entry.IsDotDot() {
			dirName = fs.GetName(ctx, dirKey, statKey(entry.DirID, entry.ObjID))
			return errStopLs
		}
		return nil
	})
	if dirName == nil {
		if recurse {
			dirName = []byte(fmt.Sprintf("%d_%d", dirKey.DirID, dirKey.ObjID))
		} else {
			dirName = []byte("(unknown)")
		}
	}
	return lsDir(ctx, fs, w, dirKey, string(dirName)+"/", recurse)
}

var errStopLs = fmt.Errorf("stop ls iteration")

func statKey(dirid, objid reiserfsprim.ObjID) reiserfsprim.Key {
	return reiserfsprim.Key{DirID: dirid, ObjID: objid,
		Type: reiserfsprim.STAT_KEY, Version: 2}
}

type lsEntry struct {
	name   string
	dirKey *reiserfsprim.Key // set for subdirectories
}

func lsDir(ctx context.Context, fs *reiserfs.FS, w io.Writer, dirKey reiserfsprim.Key, dirName string, recurse bool) error {
	fs.Incomplete = false
	var dirList []reiserfsitem.DirEntry
	if err := fs.DirectoryList(ctx, dirKey, func(entry reiserfsitem.DirEntry) error {
		dirList = append(dirList, entry)
		return nil
	}); err != nil {
		return err
	}
	incomplete := fs.Incomplete

	var entries []lsEntry
	for _, entry := range dirList {
		name := string(entry.Name)
		switch {
		case entry.IsDot():
			if recurse {
				name = dirName
				if incomplete {
					name += " (incomplete entry list)"
				}
			} else {
				name = fmt.Sprintf("%-2s\t%d_%d\t%s", name, entry.DirID, entry.ObjID, dirName)
			}
			fmt.Fprintln(w, name)
			continue
		case entry.IsDotDot():
			if recurse {
				continue
			}
			fmt.Fprintf(w, "%-2s\t%d_%d\n", name, entry.DirID, entry.ObjID)
			continue
		}

		entryKey := statKey(entry.DirID, entry.ObjID)
		isDir := false
		item, err := fs.FindItem(ctx, entryKey)
		if err != nil {
			return err
		}
		if item == nil {
			name += " (incomplete stat info)"
		} else if stat, err := item.Stat(); err != nil {
			name += " (incomplete stat info)"
		} else {
			switch stat.FileType {
			case reiserfsprim.FT_DIRECTORY:
				name += "/"
				isDir = true
			case reiserfsprim.FT_REGULAR:
				name += fileAnnotation(ctx, fs, entryKey)
			}
		}

		ent := lsEntry{name: name}
		if isDir {
			key := entryKey
			ent.dirKey = &key
		}
		entries = append(entries, ent)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	for _, ent := range entries {
		switch {
		case !recurse:
			fmt.Fprintln(w, ent.name)
		case ent.dirKey != nil:
			if err := lsDir(ctx, fs, w, *ent.dirKey, dirName+ent.name, recurse); err != nil {
				return err
			}
		default:
			fmt.Fprintln(w, dirName+ent.name)
		}
	}
	if incomplete && !recurse {
		fmt.Fprintln(w, "(results incomplete)")
	}
	return nil
}

// fileAnnotation checks how much of a regular file is recoverable:
// first whether its item sequence is complete, then whether every
// referenced data block has been rescued.
func fileAnnotation(ctx context.Context, fs *reiserfs.FS, key reiserfsprim.Key) string {
	fs.Incomplete = false
	var blocks []uint32
	if err := fs.RegularBlockList(ctx, key, func(fb reiserfs.FileBlock) error {
		if fb.Data == nil && fb.Block != 0 {
			blocks = append(blocks, fb.Block)
		}
		return nil
	}); err != nil {
		return " (incomplete block list)"
	}
	if fs.Incomplete {
		return " (incomplete block list)"
	}
	for _, block := range blocks {
		if !fs.IsBlockComplete(block) {
			return " (incomplete data blocks)"
		}
	}
	return ""
}
