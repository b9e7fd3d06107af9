// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfs

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
	"github.com/google/rescue-tools-reiserfs/lib/slices"
)

// File is a regular file's materialized block list, readable as an
// io.ReaderAt against the image.  Regions whose items were lost read
// as zeros; Incomplete records that the block list is not fully
// trusted.
type File struct {
	fs *FS

	Key        reiserfsprim.Key
	Stat       fileStat
	Incomplete bool

	extents []fileExtent
}

// fileStat is the subset of stat data that file readers need.
type fileStat struct {
	Size  uint64
	Mode  uint16
	NLink uint32
	UID   uint32
	GID   uint32
	ATime uint32
	MTime uint32
	CTime uint32
}

type fileExtent struct {
	off   uint64
	size  uint64
	block uint32 // data block; 0 when a hole or inline bytes
	data  []byte // inline bytes from a direct item
}

// OpenFile materializes the block list of the regular file at key.
func (fs *FS) OpenFile(ctx context.Context, key reiserfsprim.Key) (*File, error) {
	item, err := fs.FindItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: no readable stat item for %v", ErrPathNotFound, key)
	}
	stat, err := item.Stat()
	if err != nil {
		return nil, err
	}
	if stat.FileType != reiserfsprim.FT_REGULAR {
		return nil, fmt.Errorf("%v is a %v, not a regular file", key, stat.FileType)
	}

	file := &File{
		fs:  fs,
		Key: key,
		Stat: fileStat{
			Size:  stat.Size,
			Mode:  stat.Mode,
			NLink: stat.NLink,
			UID:   stat.UID,
			GID:   stat.GID,
			ATime: stat.ATime,
			MTime: stat.MTime,
			CTime: stat.CTime,
		},
	}
	wasIncomplete := fs.Incomplete
	fs.Incomplete = false
	pos := uint64(0)
	err = fs.RegularBlockList(ctx, key, func(fb FileBlock) error {
		ext := fileExtent{off: pos, block: fb.Block, data: fb.Data}
		if fb.Data != nil {
			ext.size = uint64(len(fb.Data))
		} else {
			ext.size = fs.BlockSize
		}
		file.extents = append(file.extents, ext)
		pos += ext.size
		return nil
	})
	file.Incomplete = fs.Incomplete
	fs.Incomplete = fs.Incomplete || wasIncomplete
	if err != nil {
		return nil, err
	}
	return file, nil
}

var _ io.ReaderAt = (*File)(nil)

// ReadAt implements io.ReaderAt.  Reads are clamped to the
// stat-reported size; bytes past the known extents read as zeros.
func (file *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if uint64(off) >= file.Stat.Size {
		return 0, io.EOF
	}
	if limit := file.Stat.Size - uint64(off); uint64(len(p)) > limit {
		p = p[:limit]
	}
	done := 0
	for done < len(p) {
		n, err := file.readExtentAt(p[done:], uint64(off)+uint64(done))
		done += n
		if err != nil {
			return done, err
		}
	}
	if done == len(p) && uint64(off)+uint64(done) >= file.Stat.Size {
		return done, io.EOF
	}
	return done, nil
}

func (file *File) readExtentAt(p []byte, off uint64) (int, error) {
	i := sort.Search(len(file.extents), func(i int) bool {
		return file.extents[i].off+file.extents[i].size > off
	})
	if i == len(file.extents) {
		// Past the recovered block list but inside the
		// stat-reported size: a lost tail reads as zeros.
		for j := range p {
			p[j] = 0
		}
		return len(p), nil
	}
	ext := file.extents[i]
	if ext.off > off {
		// In a gap before the next extent.
		n := slices.Min(uint64(len(p)), ext.off-off)
		for j := uint64(0); j < n; j++ {
			p[j] = 0
		}
		return int(n), nil
	}
	skip := off - ext.off
	n := slices.Min(uint64(len(p)), ext.size-skip)
	switch {
	case ext.data != nil:
		copy(p[:n], ext.data[skip:skip+n])
	case ext.block == 0:
		// Sparse block.
		for j := uint64(0); j < n; j++ {
			p[j] = 0
		}
	default:
		buf, err := file.fs.ReadBlock(ext.block)
		if err != nil {
			return 0, err
		}
		copy(p[:n], buf[skip:skip+n])
	}
	return int(n), nil
}
