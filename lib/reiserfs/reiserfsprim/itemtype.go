// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package reiserfsprim holds the primitive types that locate things in
// a ReiserFS v3 tree: object IDs, item types, and keys in both of the
// on-disk key formats.
package reiserfsprim

import (
	"fmt"
)

// ObjID identifies a filesystem object; keys carry the parent
// directory's ID and the object's own ID.
type ObjID uint32

const (
	// The root directory is (RootDirID, RootObjID).
	RootDirID = ObjID(1)
	RootObjID = ObjID(2)
)

type ItemType uint8

const (
	STAT_KEY      = ItemType(0)
	INDIRECT_KEY  = ItemType(1)
	DIRECT_KEY    = ItemType(2)
	DIRECTORY_KEY = ItemType(3)
	ANY_KEY       = ItemType(15)
)

func (t ItemType) Valid() bool {
	switch t {
	case STAT_KEY, INDIRECT_KEY, DIRECT_KEY, DIRECTORY_KEY, ANY_KEY:
		return true
	default:
		return false
	}
}

func (t ItemType) String() string {
	names := map[ItemType]string{
		STAT_KEY:      "STAT",
		INDIRECT_KEY:  "INDIRECT",
		DIRECT_KEY:    "DIRECT",
		DIRECTORY_KEY: "DIRECTORY",
		ANY_KEY:       "ANY",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("%d", uint8(t))
}

// Version-1 keys encode the item type as a 32-bit "uniqueness" value
// in the high half of the offset word.
var (
	v1IDToType = map[uint32]ItemType{
		0:          STAT_KEY,
		0xFFFFFFFE: INDIRECT_KEY,
		0xFFFFFFFF: DIRECT_KEY,
		500:        DIRECTORY_KEY,
		555:        ANY_KEY,
	}
	v1TypeToID = map[ItemType]uint32{
		STAT_KEY:      0,
		INDIRECT_KEY:  0xFFFFFFFE,
		DIRECT_KEY:    0xFFFFFFFF,
		DIRECTORY_KEY: 500,
		ANY_KEY:       555,
	}
)
