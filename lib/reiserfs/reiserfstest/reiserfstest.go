// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package reiserfstest hand-crafts tiny on-disk filesystem images and
// rescue maps for tests.  Everything is laid out byte-by-byte on
// purpose, so that the decoders under test are not checked against
// themselves.
package reiserfstest

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

const (
	BlockSize = 4096

	// SuperblockBlock is where the superblock lands with a 4096-byte
	// block size.
	SuperblockBlock = 65536 / BlockSize
)

type Item struct {
	Key   reiserfsprim.Key
	Count uint16
	Body  []byte
}

// Leaf builds a leaf block: item headers from byte 24, bodies packed
// from the block end growing inward.
func Leaf(items ...Item) []byte {
	block := make([]byte, BlockSize)
	bodyEnd := BlockSize
	for i, item := range items {
		bodyStart := bodyEnd - len(item.Body)
		copy(block[bodyStart:], item.Body)

		hdr := block[24+i*24:]
		key := item.Key.Pack()
		copy(hdr, key[:])
		binary.LittleEndian.PutUint16(hdr[16:], item.Count)
		binary.LittleEndian.PutUint16(hdr[18:], uint16(len(item.Body)))
		binary.LittleEndian.PutUint16(hdr[20:], uint16(bodyStart))
		binary.LittleEndian.PutUint16(hdr[22:], uint16(item.Key.Version-1))

		bodyEnd = bodyStart
	}
	binary.LittleEndian.PutUint16(block[0:], 1) // leaf level
	binary.LittleEndian.PutUint16(block[2:], uint16(len(items)))
	binary.LittleEndian.PutUint16(block[4:], uint16(bodyEnd-24-len(items)*24))
	return block
}

// Internal builds an internal node: keys from byte 24, then
// len(keys)+1 child pointer records.
func Internal(level uint16, keys []reiserfsprim.Key, children []uint32) []byte {
	if len(children) != len(keys)+1 {
		panic(fmt.Errorf("%d keys need %d children, have %d", len(keys), len(keys)+1, len(children)))
	}
	block := make([]byte, BlockSize)
	pos := 24
	for _, key := range keys {
		packed := key.Pack()
		copy(block[pos:], packed[:])
		pos += 16
	}
	for _, child := range children {
		binary.LittleEndian.PutUint32(block[pos:], child)
		binary.LittleEndian.PutUint16(block[pos+4:], 1)
		pos += 8
	}
	binary.LittleEndian.PutUint16(block[0:], level)
	binary.LittleEndian.PutUint16(block[2:], uint16(len(keys)))
	binary.LittleEndian.PutUint16(block[4:], uint16(BlockSize-pos))
	return block
}

// Superblock builds the superblock's block.
func Superblock(blockCount, rootBlock uint32, treeHeight uint16) []byte {
	block := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(block[0x00:], blockCount)
	binary.LittleEndian.PutUint32(block[0x08:], rootBlock)
	binary.LittleEndian.PutUint16(block[0x2c:], BlockSize)
	copy(block[0x34:], "ReIsEr2Fs\x00\x00\x00")
	binary.LittleEndian.PutUint16(block[0x44:], treeHeight)
	binary.LittleEndian.PutUint16(block[0x48:], 2) // format version
	return block
}

// StatV2Body builds a version-2 stat item body.
func StatV2Body(filetype reiserfsprim.FileType, perm uint16, size uint64) []byte {
	body := make([]byte, 44)
	binary.LittleEndian.PutUint16(body[0x00:], uint16(filetype)<<12|perm)
	binary.LittleEndian.PutUint32(body[0x04:], 1) // nlink
	binary.LittleEndian.PutUint64(body[0x08:], size)
	binary.LittleEndian.PutUint32(body[0x10:], 1000) // uid
	binary.LittleEndian.PutUint32(body[0x14:], 100)  // gid
	return body
}

type DirEntrySpec struct {
	Name  string
	DirID reiserfsprim.ObjID
	ObjID reiserfsprim.ObjID
}

// DirBody builds a directory item body from entry specs; use with an
// Item whose Count is len(specs).
func DirBody(specs ...DirEntrySpec) []byte {
	size := len(specs) * 16
	for _, spec := range specs {
		size += len(spec.Name)
	}
	body := make([]byte, size)
	nameEnd := len(body)
	for i, spec := range specs {
		nameStart := nameEnd - len(spec.Name)
		copy(body[nameStart:], spec.Name)

		hdr := body[i*16:]
		binary.LittleEndian.PutUint32(hdr[0:], uint32(i+1)) // hash offset; not used by tests
		binary.LittleEndian.PutUint32(hdr[4:], uint32(spec.DirID))
		binary.LittleEndian.PutUint32(hdr[8:], uint32(spec.ObjID))
		binary.LittleEndian.PutUint16(hdr[12:], uint16(nameStart))
		binary.LittleEndian.PutUint16(hdr[14:], 4) // visible

		nameEnd = nameStart
	}
	return body
}

// IndirectBody builds an indirect item body from block pointers.
func IndirectBody(blocks ...uint32) []byte {
	body := make([]byte, len(blocks)*4)
	for i, block := range blocks {
		binary.LittleEndian.PutUint32(body[i*4:], block)
	}
	return body
}

// Image assembles blocks into a flat image.
type Image struct {
	BlockCount uint32
	Blocks     map[uint32][]byte
}

func (img Image) Bytes() []byte {
	dat := make([]byte, uint64(img.BlockCount)*BlockSize)
	for num, block := range img.Blocks {
		copy(dat[uint64(num)*BlockSize:], block)
	}
	return dat
}

// StatKey returns the key of an object's stat item the way callers
// construct it.
func StatKey(dirid, objid reiserfsprim.ObjID) reiserfsprim.Key {
	return reiserfsprim.Key{DirID: dirid, ObjID: objid,
		Type: reiserfsprim.STAT_KEY, Version: 2}
}

// MustParseMap parses rescue-map text with a standard header
// prepended.
func MustParseMap(dataLines string) *ddrescue.RescueMap {
	text := "# Mapfile. Created by reiserfstest\n# current_pos  current_status\n0 +\n" + dataLines
	m, err := ddrescue.Parse(strings.NewReader(text))
	if err != nil {
		panic(err)
	}
	return m
}

// FinishedMap covers [0, size) with Finished status.
func FinishedMap(size uint64) *ddrescue.RescueMap {
	return MustParseMap(fmt.Sprintf("0x0 %#x +\n", size))
}
