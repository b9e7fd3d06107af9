// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfstree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

const testBlockSize = 4096

type testItem struct {
	key   reiserfsprim.Key
	count uint16
	body  []byte
}

// buildLeaf lays a leaf out the way mkreiserfs does: item headers
// concatenated from the payload start, bodies packed from the block
// end growing inward.
func buildLeaf(t *testing.T, items ...testItem) []byte {
	t.Helper()
	block := make([]byte, testBlockSize)
	bodyEnd := testBlockSize
	for i, item := range items {
		bodyStart := bodyEnd - len(item.body)
		copy(block[bodyStart:], item.body)
		hdr, err := binstruct.Marshal(itemHdr{
			Key:      item.key.Pack(),
			Count:    item.count,
			Length:   uint16(len(item.body)),
			Location: uint16(bodyStart),
			Version:  uint16(item.key.Version - 1),
		})
		require.NoError(t, err)
		copy(block[NodeHeaderSize+i*ItemHdrSize:], hdr)
		bodyEnd = bodyStart
	}
	freeSpace := bodyEnd - NodeHeaderSize - len(items)*ItemHdrSize
	nh, err := binstruct.Marshal(nodeHeader{
		Level:     LeafLevel,
		ItemCount: uint16(len(items)),
		FreeSpace: uint16(freeSpace),
	})
	require.NoError(t, err)
	copy(block, nh)
	return block
}

func buildInternal(t *testing.T, level uint16, keys []reiserfsprim.Key, children []uint32) []byte {
	t.Helper()
	require.Len(t, children, len(keys)+1)
	block := make([]byte, testBlockSize)
	pos := NodeHeaderSize
	for _, key := range keys {
		packed := key.Pack()
		copy(block[pos:], packed[:])
		pos += reiserfsprim.KeySize
	}
	for _, child := range children {
		ptr, err := binstruct.Marshal(nodePtr{Block: child, Size: 1})
		require.NoError(t, err)
		copy(block[pos:], ptr)
		pos += nodePtrSize
	}
	nh, err := binstruct.Marshal(nodeHeader{
		Level:     level,
		ItemCount: uint16(len(keys)),
		FreeSpace: uint16(testBlockSize - pos),
	})
	require.NoError(t, err)
	copy(block, nh)
	return block
}

func statKey(dirid, objid reiserfsprim.ObjID) reiserfsprim.Key {
	return reiserfsprim.Key{DirID: dirid, ObjID: objid, Offset: 0, Type: reiserfsprim.STAT_KEY, Version: 2}
}

func TestUnpackLeaf(t *testing.T) {
	t.Parallel()

	items := []testItem{
		{key: statKey(1, 2), body: make([]byte, 44)},
		{key: reiserfsprim.Key{DirID: 1, ObjID: 2, Offset: 1, Type: reiserfsprim.DIRECTORY_KEY, Version: 1},
			count: 2, body: make([]byte, 48)},
	}
	block := buildLeaf(t, items...)

	node, err := UnpackNode(block)
	require.NoError(t, err)
	assert.True(t, node.Leaf())
	assert.Equal(t, uint16(2), node.ItemCount)

	// item_count*hdr + free_space + body bytes fill the payload.
	bodyBytes := 44 + 48
	assert.Equal(t, testBlockSize-NodeHeaderSize,
		int(node.ItemCount)*ItemHdrSize+int(node.FreeSpace)+bodyBytes)

	got, err := node.Items()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, items[0].key, got[0].Key)
	assert.Equal(t, items[1].key, got[1].Key)
	assert.Len(t, got[0].Body, 44)
	assert.Len(t, got[1].Body, 48)
}

func TestItemFindMatchesRangeScan(t *testing.T) {
	t.Parallel()

	want := statKey(7, 8)
	block := buildLeaf(t,
		testItem{key: statKey(1, 2), body: make([]byte, 44)},
		testItem{key: want, body: make([]byte, 32)},
		testItem{key: statKey(7, 9), body: make([]byte, 44)},
	)
	node, err := UnpackNode(block)
	require.NoError(t, err)

	item, err := node.ItemFind(want)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, want, item.Key)

	// A minimally-larger end key makes a range scan return the
	// same single item.
	end := want
	end.Offset++
	viaRange, err := node.ItemFindRange(want, end)
	require.NoError(t, err)
	require.Len(t, viaRange, 1)
	assert.Equal(t, *item, viaRange[0])

	missing, err := node.ItemFind(statKey(9, 9))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPtrFind(t *testing.T) {
	t.Parallel()

	keys := []reiserfsprim.Key{statKey(1, 10), statKey(1, 20)}
	block := buildInternal(t, 2, keys, []uint32{100, 200, 300})
	node, err := UnpackNode(block)
	require.NoError(t, err)
	assert.False(t, node.Leaf())

	for _, tc := range []struct {
		key  reiserfsprim.Key
		want uint32
	}{
		{statKey(1, 5), 100},
		{statKey(1, 10), 200}, // delimiting key goes right
		{statKey(1, 15), 200},
		{statKey(1, 20), 300},
		{statKey(1, 99), 300},
	} {
		got, err := node.PtrFind(tc.key)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "key=%v", tc.key)
	}

	// Memoized lookups hit the per-node cache.
	_, _ = node.PtrFind(statKey(1, 5))
	assert.Positive(t, node.PtrFindCacheHits())

	_, err = node.PtrFind(reiserfsprim.Key{DirID: 1, ObjID: 5, Offset: 1,
		Type: reiserfsprim.DIRECTORY_KEY, Version: 1})
	assert.ErrorIs(t, err, reiserfsprim.ErrKeyVersionAmbiguous)
}

func TestPtrFindRange(t *testing.T) {
	t.Parallel()

	keys := []reiserfsprim.Key{statKey(1, 10), statKey(1, 20), statKey(1, 30)}
	block := buildInternal(t, 2, keys, []uint32{100, 200, 300, 400})
	node, err := UnpackNode(block)
	require.NoError(t, err)

	got, err := node.PtrFindRange(statKey(1, 10), statKey(1, 30))
	require.NoError(t, err)
	assert.Equal(t, []uint32{200, 300}, got)

	got, err = node.PtrFindRange(statKey(1, 0), statKey(1, 99))
	require.NoError(t, err)
	assert.Equal(t, []uint32{100, 200, 300, 400}, got)
}

func TestUnpackNodeLevelZero(t *testing.T) {
	t.Parallel()

	block := make([]byte, testBlockSize)
	_, err := UnpackNode(block)
	assert.Error(t, err)
}

func TestIndirectItemBlocks(t *testing.T) {
	t.Parallel()

	body := make([]byte, 8)
	body[0] = 50 // blocks 50, 0 (hole)
	block := buildLeaf(t,
		testItem{key: statKey(1, 4), body: make([]byte, 44)},
		testItem{key: reiserfsprim.Key{DirID: 1, ObjID: 4, Offset: 1,
			Type: reiserfsprim.INDIRECT_KEY, Version: 1}, body: body},
	)
	node, err := UnpackNode(block)
	require.NoError(t, err)

	blocks, err := node.IndirectItemBlocks()
	require.NoError(t, err)
	assert.Equal(t, []uint32{50, 0}, blocks)
}
