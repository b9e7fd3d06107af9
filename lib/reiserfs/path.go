// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

var errStopIteration = errors.New("stop iteration")

// maxNameDepth bounds GetFullName's ascent; corrupted '..' links can
// form cycles on damaged media.
const maxNameDepth = 4096

func statKey(dirid, objid reiserfsprim.ObjID) reiserfsprim.Key {
	return reiserfsprim.Key{DirID: dirid, ObjID: objid, Offset: 0,
		Type: reiserfsprim.STAT_KEY, Version: 2}
}

// RootKey is the key of the root directory's stat item.
func RootKey() reiserfsprim.Key {
	return statKey(reiserfsprim.RootDirID, reiserfsprim.RootObjID)
}

// GetName returns key's name within the parent directory, or nil if
// no readable entry refers to it.  The root has the empty name.  When
// hard links make the name ambiguous, the first match wins.
func (fs *FS) GetName(ctx context.Context, key, parent reiserfsprim.Key) []byte {
	if key.ObjID == reiserfsprim.RootObjID {
		return []byte{}
	}
	var name []byte
	err := fs.DirectoryList(ctx, parent, func(entry reiserfsitem.DirEntry) error {
		if entry.ObjID == key.ObjID {
			name = entry.Name
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil
	}
	return name
}

// GetFullName resolves key to a slash-separated path by repeatedly
// ascending through each directory's '..' entry (one of the first two
// entries).  Unresolvable names fall back to the "<dirid>_<objid>"
// rendering and stop the ascent.
func (fs *FS) GetFullName(ctx context.Context, key, parent reiserfsprim.Key) []byte {
	var parts [][]byte
	for depth := 0; depth < maxNameDepth; depth++ {
		part := fs.GetName(ctx, key, parent)
		resolved := part != nil
		if !resolved {
			part = []byte(fmt.Sprintf("%d_%d", key.DirID, key.ObjID))
		}
		parts = append(parts, part)
		if !resolved || key.ObjID == reiserfsprim.RootObjID {
			break
		}
		ascended := false
		count := 0
		err := fs.DirectoryList(ctx, parent, func(entry reiserfsitem.DirEntry) error {
			count++
			if count > 2 {
				return errStopIteration
			}
			if !entry.IsDotDot() {
				return nil
			}
			key = parent
			parent = statKey(entry.DirID, entry.ObjID)
			ascended = true
			return errStopIteration
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			break
		}
		if !ascended {
			// No readable '..' among the parent's first two
			// entries: stop with the parts found so far.
			break
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return bytes.Join(parts, []byte("/"))
}

// PathToKey resolves a slash-delimited path to the stat key of its
// final segment.  An absolute path starts at the root; otherwise the
// first segment must be an orphan root in the "<dirid>_<objid>" form
// used for files that would land in lost+found.
func (fs *FS) PathToKey(ctx context.Context, path string) (reiserfsprim.Key, error) {
	parts := strings.Split(path, "/")
	var dirKey reiserfsprim.Key
	if parts[0] != "" {
		idParts := strings.Split(parts[0], "_")
		if len(idParts) != 2 {
			return dirKey, fmt.Errorf("%w: %q is neither absolute nor <dirid>_<objid>-rooted",
				ErrPathNotFound, path)
		}
		dirid, err1 := strconv.ParseUint(idParts[0], 10, 32)
		objid, err2 := strconv.ParseUint(idParts[1], 10, 32)
		if err1 != nil || err2 != nil {
			return dirKey, fmt.Errorf("%w: %q is neither absolute nor <dirid>_<objid>-rooted",
				ErrPathNotFound, path)
		}
		dirKey = statKey(reiserfsprim.ObjID(dirid), reiserfsprim.ObjID(objid))
	} else {
		dirKey = RootKey()
	}
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		found := false
		err := fs.DirectoryList(ctx, dirKey, func(entry reiserfsitem.DirEntry) error {
			if bytes.Equal(entry.Name, []byte(part)) {
				dirKey = statKey(entry.DirID, entry.ObjID)
				found = true
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			return dirKey, err
		}
		if !found {
			return dirKey, fmt.Errorf("%w: %q", ErrPathNotFound, path)
		}
	}
	return dirKey, nil
}
