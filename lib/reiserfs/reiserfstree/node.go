// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfstree

import (
	"bytes"
	"fmt"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

const (
	// NodeHeaderSize is the size of the block header; item header
	// locations are relative to the block start, so subtract it to
	// index into the payload.
	NodeHeaderSize = 24

	ItemHdrSize = 24

	nodePtrSize = 8

	// LeafLevel is the level of leaf nodes; internal nodes are
	// above it, and level 0 does not occur in valid trees.
	LeafLevel = 1
)

type nodeHeader struct {
	Level         uint16   `bin:"off=0, siz=2"`
	ItemCount     uint16   `bin:"off=2, siz=2"`
	FreeSpace     uint16   `bin:"off=4, siz=2"`
	Reserved      [18]byte `bin:"off=6, siz=12"`
	binstruct.End `bin:"off=18"`
}

type itemHdr struct {
	Key           [reiserfsprim.KeySize]byte `bin:"off=0, siz=10"`
	Count         uint16                     `bin:"off=10, siz=2"`
	Length        uint16                     `bin:"off=12, siz=2"`
	Location      uint16                     `bin:"off=14, siz=2"`
	Version       uint16                     `bin:"off=16, siz=2"`
	binstruct.End `bin:"off=18"`
}

type nodePtr struct {
	Block         uint32  `bin:"off=0, siz=4"`
	Size          uint16  `bin:"off=4, siz=2"`
	Reserved      [2]byte `bin:"off=6, siz=2"`
	binstruct.End `bin:"off=8"`
}

// Item is a decoded leaf item: its key, the sub-entry count from the
// item header, the format version, and the raw body.  Body contents
// are decoded on demand by the reiserfsitem package.
type Item struct {
	Key     reiserfsprim.Key
	Count   uint16
	Version uint16
	Body    []byte
}

func (item Item) Stat() (reiserfsitem.Stat, error) {
	return reiserfsitem.UnpackStat(item.Body)
}

func (item Item) DirEntries() ([]reiserfsitem.DirEntry, error) {
	return reiserfsitem.DecodeDirEntries(item.Body, int(item.Count))
}

func (item Item) IndirectBlocks() ([]uint32, error) {
	return reiserfsitem.IndirectBlocks(item.Body)
}

// Node is a decoded tree node.  Payload is the block contents past
// the node header.
type Node struct {
	Level     uint16
	ItemCount uint16
	FreeSpace uint16
	Payload   []byte

	ptrFindCache containers.LRUCache[reiserfsprim.Key, uint32]
	ptrFindHits  int64
}

// PtrFindCacheHits reports how often a descent was answered from the
// per-node memoization.
func (node *Node) PtrFindCacheHits() int64 { return node.ptrFindHits }

// UnpackNode decodes a block-sized buffer as a tree node.
func UnpackNode(block []byte) (*Node, error) {
	var hdr nodeHeader
	if _, err := binstruct.Unmarshal(block, &hdr); err != nil {
		return nil, err
	}
	if hdr.Level == 0 {
		return nil, fmt.Errorf("node level 0 does not occur in valid trees")
	}
	return &Node{
		Level:     hdr.Level,
		ItemCount: hdr.ItemCount,
		FreeSpace: hdr.FreeSpace,
		Payload:   block[NodeHeaderSize:],
	}, nil
}

func (node *Node) Leaf() bool { return node.Level == LeafLevel }

func (node *Node) keyAt(i int) (reiserfsprim.Key, error) {
	pos := i * reiserfsprim.KeySize
	if pos+reiserfsprim.KeySize > len(node.Payload) {
		return reiserfsprim.Key{}, fmt.Errorf("key %d outside of node payload", i)
	}
	return reiserfsprim.UnpackKey(node.Payload[pos:])
}

func (node *Node) ptrAt(i int) (uint32, error) {
	pos := int(node.ItemCount)*reiserfsprim.KeySize + i*nodePtrSize
	if pos+nodePtrSize > len(node.Payload) {
		return 0, fmt.Errorf("pointer %d outside of node payload", i)
	}
	var ptr nodePtr
	if _, err := binstruct.Unmarshal(node.Payload[pos:], &ptr); err != nil {
		return 0, err
	}
	return ptr.Block, nil
}

// PtrFind picks the child pointer to descend into for key: the first
// child whose delimiting keys bracket it.  Only STAT keys may be
// searched for, because of the version-1 comparability restriction.
// Results are memoized per node.
func (node *Node) PtrFind(key reiserfsprim.Key) (uint32, error) {
	if node.Leaf() {
		return 0, fmt.Errorf("PtrFind on a leaf")
	}
	if key.Type != reiserfsprim.STAT_KEY {
		return 0, fmt.Errorf("%w: tree descent by %v key",
			reiserfsprim.ErrKeyVersionAmbiguous, key.Type)
	}
	if block, ok := node.ptrFindCache.Get(key); ok {
		node.ptrFindHits++
		return block, nil
	}
	i := 0
	for ; i < int(node.ItemCount); i++ {
		ikey, err := node.keyAt(i)
		if err != nil {
			return 0, err
		}
		if ikey.Compare(key) > 0 {
			break
		}
	}
	block, err := node.ptrAt(i)
	if err != nil {
		return 0, err
	}
	node.ptrFindCache.GetOrElse(key, func() uint32 { return block })
	return block, nil
}

// PtrFindRange returns the child pointers whose subtrees may contain
// keys in [keyStart, keyEnd).
func (node *Node) PtrFindRange(keyStart, keyEnd reiserfsprim.Key) ([]uint32, error) {
	if node.Leaf() {
		return nil, fmt.Errorf("PtrFindRange on a leaf")
	}
	start := int(node.ItemCount)
	for i := 0; i < int(node.ItemCount); i++ {
		ikey, err := node.keyAt(i)
		if err != nil {
			return nil, err
		}
		if ikey.Compare(keyStart) > 0 {
			start = i
			break
		}
	}
	end := int(node.ItemCount)
	for i := start; i < int(node.ItemCount); i++ {
		ikey, err := node.keyAt(i)
		if err != nil {
			return nil, err
		}
		if ikey.Compare(keyEnd) >= 0 {
			end = i
			break
		}
	}
	ret := make([]uint32, 0, end-start+1)
	for i := start; i <= end; i++ {
		block, err := node.ptrAt(i)
		if err != nil {
			return nil, err
		}
		ret = append(ret, block)
	}
	return ret, nil
}

// PtrBlocks returns all ItemCount+1 child pointers of an internal
// node.
func (node *Node) PtrBlocks() ([]uint32, error) {
	if node.Leaf() {
		return nil, nil
	}
	ret := make([]uint32, 0, node.ItemCount+1)
	for i := 0; i <= int(node.ItemCount); i++ {
		block, err := node.ptrAt(i)
		if err != nil {
			return nil, err
		}
		ret = append(ret, block)
	}
	return ret, nil
}

func (node *Node) itemHdrAt(i int) (itemHdr, error) {
	var hdr itemHdr
	if (i+1)*ItemHdrSize > len(node.Payload) {
		return hdr, fmt.Errorf("item header %d outside of node payload", i)
	}
	if _, err := binstruct.Unmarshal(node.Payload[i*ItemHdrSize:], &hdr); err != nil {
		return hdr, err
	}
	return hdr, nil
}

func (node *Node) itemAt(hdr itemHdr) (Item, error) {
	// The on-disk key's version is the header's version field +1.
	key, err := reiserfsprim.UnpackKeyVersion(hdr.Key[:], uint8(hdr.Version)+1)
	if err != nil {
		return Item{}, err
	}
	bodyStart := int(hdr.Location) - NodeHeaderSize
	bodyEnd := bodyStart + int(hdr.Length)
	if bodyStart < 0 || bodyEnd > len(node.Payload) {
		return Item{}, fmt.Errorf("item body [%d,%d) outside of node payload", bodyStart, bodyEnd)
	}
	return Item{
		Key:     key,
		Count:   hdr.Count,
		Version: hdr.Version,
		Body:    node.Payload[bodyStart:bodyEnd],
	}, nil
}

// Items decodes every item of a leaf.
func (node *Node) Items() ([]Item, error) {
	if !node.Leaf() {
		return nil, fmt.Errorf("Items on an internal node")
	}
	ret := make([]Item, 0, node.ItemCount)
	for i := 0; i < int(node.ItemCount); i++ {
		hdr, err := node.itemHdrAt(i)
		if err != nil {
			return nil, err
		}
		item, err := node.itemAt(hdr)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, nil
}

// ItemFind returns the leaf item whose key matches exactly (by
// 16-byte on-disk encoding), or nil.
func (node *Node) ItemFind(key reiserfsprim.Key) (*Item, error) {
	packed := key.Pack()
	for i := 0; i < int(node.ItemCount); i++ {
		if (i+1)*ItemHdrSize > len(node.Payload) {
			return nil, fmt.Errorf("item header %d outside of node payload", i)
		}
		// The key is the first field of the item header.
		if !bytes.Equal(packed[:], node.Payload[i*ItemHdrSize:i*ItemHdrSize+reiserfsprim.KeySize]) {
			continue
		}
		hdr, err := node.itemHdrAt(i)
		if err != nil {
			return nil, err
		}
		item, err := node.itemAt(hdr)
		if err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, nil
}

// ItemFindRange returns the leaf items with keyStart <= key < keyEnd.
func (node *Node) ItemFindRange(keyStart, keyEnd reiserfsprim.Key) ([]Item, error) {
	var ret []Item
	for i := 0; i < int(node.ItemCount); i++ {
		hdr, err := node.itemHdrAt(i)
		if err != nil {
			return nil, err
		}
		key, err := reiserfsprim.UnpackKeyVersion(hdr.Key[:], uint8(hdr.Version)+1)
		if err != nil {
			return nil, err
		}
		if keyStart.Compare(key) <= 0 && key.Compare(keyEnd) < 0 {
			item, err := node.itemAt(hdr)
			if err != nil {
				return nil, err
			}
			ret = append(ret, item)
		}
	}
	return ret, nil
}

// IndirectItemBlocks returns the block pointers of every INDIRECT
// item in a leaf, in item order.
func (node *Node) IndirectItemBlocks() ([]uint32, error) {
	if !node.Leaf() {
		return nil, nil
	}
	items, err := node.Items()
	if err != nil {
		return nil, err
	}
	var ret []uint32
	for _, item := range items {
		if item.Key.Type != reiserfsprim.INDIRECT_KEY {
			continue
		}
		blocks, err := item.IndirectBlocks()
		if err != nil {
			return nil, err
		}
		ret = append(ret, blocks...)
	}
	return ret, nil
}
