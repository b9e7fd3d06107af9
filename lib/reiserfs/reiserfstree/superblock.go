// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package reiserfstree decodes the on-disk structures of the ReiserFS
// v3 B+-tree: the superblock, internal and leaf nodes, item headers,
// and the searches within a single node.  It performs no I/O.
package reiserfstree

import (
	"bytes"
	"fmt"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
)

// SuperblockOffset is the fixed byte offset of the superblock within
// the partition.
const SuperblockOffset = 65536

// Superblock is the first 0x50 bytes of the on-disk superblock; the
// remainder of its block is not needed for read-only recovery.
type Superblock struct {
	BlockCount          uint32   `bin:"off=0, siz=4"`
	FreeBlocks          uint32   `bin:"off=4, siz=4"`
	RootBlock           uint32   `bin:"off=8, siz=4"`
	JournalBlock        uint32   `bin:"off=c, siz=4"`
	JournalDevice       uint32   `bin:"off=10, siz=4"`
	OrigJournalSize     uint32   `bin:"off=14, siz=4"`
	JournalTransMax     uint32   `bin:"off=18, siz=4"`
	JournalMagic        uint32   `bin:"off=1c, siz=4"`
	JournalMaxBatch     uint32   `bin:"off=20, siz=4"`
	JournalMaxCommitAge uint32   `bin:"off=24, siz=4"`
	JournalMaxTransAge  uint32   `bin:"off=28, siz=4"`
	BlockSize           uint16   `bin:"off=2c, siz=2"`
	OIDMaxSize          uint16   `bin:"off=2e, siz=2"`
	OIDCurrentSize      uint16   `bin:"off=30, siz=2"`
	State               uint16   `bin:"off=32, siz=2"`
	Magic               [12]byte `bin:"off=34, siz=c"`
	HashFunction        uint32   `bin:"off=40, siz=4"`
	TreeHeight          uint16   `bin:"off=44, siz=2"`
	BitmapNumber        uint16   `bin:"off=46, siz=2"`
	Version             uint16   `bin:"off=48, siz=2"`
	Reserved            [2]byte  `bin:"off=4a, siz=2"`
	InodeGeneration     uint32   `bin:"off=4c, siz=4"`
	binstruct.End       `bin:"off=50"`
}

// UnpackSuperblock decodes the leading bytes of the superblock's
// block.
func UnpackSuperblock(dat []byte) (Superblock, error) {
	var sb Superblock
	if _, err := binstruct.Unmarshal(dat, &sb); err != nil {
		return sb, err
	}
	if err := sb.Validate(); err != nil {
		return sb, err
	}
	return sb, nil
}

func (sb Superblock) Validate() error {
	if !bytes.HasPrefix(sb.Magic[:], []byte("ReIsEr")) {
		return fmt.Errorf("bad magic %q", sb.Magic)
	}
	switch sb.BlockSize {
	case 512, 1024, 2048, 4096, 8192:
		// ok
	default:
		return fmt.Errorf("implausible block size %d", sb.BlockSize)
	}
	return nil
}
