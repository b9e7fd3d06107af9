// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package reiserfsitem decodes the bodies of leaf items: stat data,
// directory entries, and indirect block-pointer arrays.
package reiserfsitem

import (
	"fmt"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

// statV1 is the stat data layout used by version-1 items.
type statV1 struct {
	Mode            uint16 `bin:"off=0, siz=2"`
	NLink           uint16 `bin:"off=2, siz=2"`
	UID             uint16 `bin:"off=4, siz=2"`
	GID             uint16 `bin:"off=6, siz=2"`
	Size            uint32 `bin:"off=8, siz=4"`
	ATime           uint32 `bin:"off=c, siz=4"`
	MTime           uint32 `bin:"off=10, siz=4"`
	CTime           uint32 `bin:"off=14, siz=4"`
	RDev            uint32 `bin:"off=18, siz=4"`
	FirstDirectByte uint32 `bin:"off=1c, siz=4"`
	binstruct.End   `bin:"off=20"`
}

// statV2 permutes uid/gid relative to v1 and widens nlink and size.
type statV2 struct {
	Mode          uint16  `bin:"off=0, siz=2"`
	Reserved      [2]byte `bin:"off=2, siz=2"`
	NLink         uint32  `bin:"off=4, siz=4"`
	Size          uint64  `bin:"off=8, siz=8"`
	UID           uint32  `bin:"off=10, siz=4"`
	GID           uint32  `bin:"off=14, siz=4"`
	ATime         uint32  `bin:"off=18, siz=4"`
	MTime         uint32  `bin:"off=1c, siz=4"`
	CTime         uint32  `bin:"off=20, siz=4"`
	Blocks        uint32  `bin:"off=24, siz=4"`
	RDev          uint32  `bin:"off=28, siz=4"`
	binstruct.End `bin:"off=2c"`
}

// Stat is the normalized form of both stat data layouts.
type Stat struct {
	Mode     uint16 // permission bits only
	FileType reiserfsprim.FileType
	NLink    uint32
	UID      uint32
	GID      uint32
	Size     uint64
	ATime    uint32
	MTime    uint32
	CTime    uint32
}

// UnpackStat decodes a stat item body, selecting the layout by body
// length: the v1 size means v1, anything else is tried as v2.
func UnpackStat(body []byte) (Stat, error) {
	var ret Stat
	if len(body) == binstruct.StaticSize(statV1{}) {
		var v1 statV1
		if _, err := binstruct.Unmarshal(body, &v1); err != nil {
			return ret, err
		}
		ret = Stat{
			Mode:  v1.Mode,
			NLink: uint32(v1.NLink),
			UID:   uint32(v1.UID),
			GID:   uint32(v1.GID),
			Size:  uint64(v1.Size),
			ATime: v1.ATime,
			MTime: v1.MTime,
			CTime: v1.CTime,
		}
	} else {
		var v2 statV2
		if _, err := binstruct.Unmarshal(body, &v2); err != nil {
			return ret, fmt.Errorf("stat body is %d bytes: %w", len(body), err)
		}
		ret = Stat{
			Mode:  v2.Mode,
			NLink: v2.NLink,
			UID:   v2.UID,
			GID:   v2.GID,
			Size:  v2.Size,
			ATime: v2.ATime,
			MTime: v2.MTime,
			CTime: v2.CTime,
		}
	}
	ret.FileType, ret.Mode = reiserfsprim.SplitMode(ret.Mode)
	return ret, nil
}
