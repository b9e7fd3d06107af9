// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfsprim

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrKeyVersionAmbiguous is returned when a comparison is attempted
// between keys whose on-disk versions make their relative order
// undefined.
var ErrKeyVersionAmbiguous = errors.New("comparison between key versions is not defined")

const KeySize = 16

// Key locates an item in the tree.  Version records which of the two
// on-disk key formats the key was read from (or will be written in):
// version 1 keys carry the item type as a 32-bit uniqueness value,
// version 2 keys carry it in the top 4 bits of the offset word.
type Key struct {
	DirID   ObjID
	ObjID   ObjID
	Offset  uint64
	Type    ItemType
	Version uint8
}

func (k Key) String() string {
	return fmt.Sprintf("{%d %d %d %v v%d}", k.DirID, k.ObjID, k.Offset, k.Type, k.Version)
}

// UnpackKey decodes a 16-byte on-disk key, inferring the version: if
// the low 4 bits of the combined offset+type word are 0 or 15 the key
// is version 1, otherwise version 2.
func UnpackKey(dat []byte) (Key, error) {
	return unpackKey(dat, 0)
}

// UnpackKeyVersion decodes a 16-byte on-disk key whose version is
// already known (item headers record it).
func UnpackKeyVersion(dat []byte, version uint8) (Key, error) {
	if version != 1 && version != 2 {
		return Key{}, fmt.Errorf("invalid key version %d", version)
	}
	return unpackKey(dat, version)
}

func unpackKey(dat []byte, version uint8) (Key, error) {
	if len(dat) < KeySize {
		return Key{}, fmt.Errorf("truncated key: %d bytes", len(dat))
	}
	ret := Key{
		DirID: ObjID(binary.LittleEndian.Uint32(dat[0:4])),
		ObjID: ObjID(binary.LittleEndian.Uint32(dat[4:8])),
	}
	word := binary.LittleEndian.Uint64(dat[8:16])
	if version == 0 {
		if assumed := ItemType(word & 0xF); assumed == 0 || assumed == 15 {
			version = 1
		} else {
			version = 2
		}
	}
	ret.Version = version
	if version == 1 {
		ret.Offset = word & 0xFFFFFFFF
		typ, ok := v1IDToType[uint32(word>>32)]
		if !ok {
			return Key{}, fmt.Errorf("invalid v1 key type %#x", uint32(word>>32))
		}
		ret.Type = typ
	} else {
		ret.Offset = word & 0x0FFFFFFFFFFFFFFF
		ret.Type = ItemType(word >> 60)
		if !ret.Type.Valid() {
			return Key{}, fmt.Errorf("invalid v2 key type %#x", uint8(word>>60))
		}
	}
	return ret, nil
}

// Pack returns the 16-byte on-disk encoding of k, in k's version.
func (k Key) Pack() [KeySize]byte {
	var word uint64
	if k.Version == 1 {
		word = k.Offset&0xFFFFFFFF | uint64(v1TypeToID[k.Type])<<32
	} else {
		word = k.Offset&0x0FFFFFFFFFFFFFFF | uint64(k.Type)<<60
	}
	var ret [KeySize]byte
	binary.LittleEndian.PutUint32(ret[0:4], uint32(k.DirID))
	binary.LittleEndian.PutUint32(ret[4:8], uint32(k.ObjID))
	binary.LittleEndian.PutUint64(ret[8:16], word)
	return ret
}

// ComparableWith reports whether the order of a and b is defined:
// both keys are version 2, or at least one of them is of STAT type.
// Version-1 directory and data offsets do not order against version-2
// ones, so other comparisons must not be relied on.
func (a Key) ComparableWith(b Key) bool {
	if a.Version == 2 && b.Version == 2 {
		return true
	}
	return a.Type == STAT_KEY || b.Type == STAT_KEY
}

// Compare orders keys by (DirID, ObjID, Offset, Type, Version).  The
// caller is responsible for staying inside the ComparableWith
// envelope.
func (a Key) Compare(b Key) int {
	if d := cmp(a.DirID, b.DirID); d != 0 {
		return d
	}
	if d := cmp(a.ObjID, b.ObjID); d != 0 {
		return d
	}
	if d := cmp(a.Offset, b.Offset); d != 0 {
		return d
	}
	if d := cmp(a.Type, b.Type); d != 0 {
		return d
	}
	return cmp(a.Version, b.Version)
}

func cmp[T ObjID | uint64 | ItemType | uint8](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
