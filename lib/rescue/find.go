// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstree"
)

// Find scans every readable leaf for directory entries named name
// and prints each match's full path.  It is the way to locate
// directories that are no longer reachable from the root and would
// end up in lost+found after an fsck.
func Find(ctx context.Context, fs *reiserfs.FS, w io.Writer, name string) error {
	if err := fs.Init(ctx); err != nil {
		dlog.Errorln(ctx, err)
		return nil
	}

	want := []byte(name)
	return fs.IterLeafs(ctx, func(leaf *reiserfstree.Node) error {
		items, err := leaf.Items()
		if err != nil {
			return nil
		}
		for _, item := range items {
			if item.Key.Type != reiserfsprim.DIRECTORY_KEY {
				continue
			}
			entries, err := item.DirEntries()
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if !bytes.Equal(entry.Name, want) {
					continue
				}
				full := fs.GetFullName(ctx,
					statKey(entry.DirID, entry.ObjID),
					statKey(item.Key.DirID, item.Key.ObjID))
				fmt.Fprintln(w, string(full))
			}
		}
		return nil
	})
}
