// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstest"
	"github.com/google/rescue-tools-reiserfs/lib/rescue"
)

const imageSize = 40 * reiserfstest.BlockSize // 163840 bytes

// testImage is a single-leaf filesystem (the root node is the leaf at
// block 20):
//
//	/         (1,2)
//	/a        (2,4)
//	/a/b      (4,7)
//	/a/b/bb   (7,10) regular, one block at 30
//	/a/c      (4,8)
//	/a/c/cc   (8,11) regular, one block at 31
//	/bar.txt  (2,5)  regular, stat size 10 but only 7 bytes present
//
// Block 17 is the first free-space bitmap, marking blocks 16, 17, 20,
// 30, and 31 used.
func testImage() reiserfstest.Image {
	dirV1 := func(dirid, objid reiserfsprim.ObjID) reiserfsprim.Key {
		return reiserfsprim.Key{DirID: dirid, ObjID: objid, Offset: 1,
			Type: reiserfsprim.DIRECTORY_KEY, Version: 1}
	}
	dir := func(dirid, objid, parentDir, parentObj reiserfsprim.ObjID, children ...reiserfstest.DirEntrySpec) []reiserfstest.Item {
		specs := append([]reiserfstest.DirEntrySpec{
			{Name: ".", DirID: dirid, ObjID: objid},
			{Name: "..", DirID: parentDir, ObjID: parentObj},
		}, children...)
		body := reiserfstest.DirBody(specs...)
		return []reiserfstest.Item{
			{Key: reiserfstest.StatKey(dirid, objid),
				Body: reiserfstest.StatV2Body(reiserfsprim.FT_DIRECTORY, 0o755, uint64(len(body)))},
			{Key: dirV1(dirid, objid), Count: uint16(len(specs)), Body: body},
		}
	}

	var items []reiserfstest.Item
	items = append(items, dir(1, 2, 0, 1,
		reiserfstest.DirEntrySpec{Name: "a", DirID: 2, ObjID: 4},
		reiserfstest.DirEntrySpec{Name: "bar.txt", DirID: 2, ObjID: 5},
	)...)
	items = append(items, dir(2, 4, 1, 2,
		reiserfstest.DirEntrySpec{Name: "b", DirID: 4, ObjID: 7},
		reiserfstest.DirEntrySpec{Name: "c", DirID: 4, ObjID: 8},
	)...)
	items = append(items,
		reiserfstest.Item{Key: reiserfstest.StatKey(2, 5),
			Body: reiserfstest.StatV2Body(reiserfsprim.FT_REGULAR, 0o644, 10)},
		reiserfstest.Item{Key: reiserfsprim.Key{DirID: 2, ObjID: 5, Offset: 1,
			Type: reiserfsprim.DIRECT_KEY, Version: 2},
			Body: []byte("1234567")},
	)
	items = append(items, dir(4, 7, 2, 4,
		reiserfstest.DirEntrySpec{Name: "bb", DirID: 7, ObjID: 10},
	)...)
	items = append(items, dir(4, 8, 2, 4,
		reiserfstest.DirEntrySpec{Name: "cc", DirID: 8, ObjID: 11},
	)...)
	items = append(items,
		reiserfstest.Item{Key: reiserfstest.StatKey(7, 10),
			Body: reiserfstest.StatV2Body(reiserfsprim.FT_REGULAR, 0o644, reiserfstest.BlockSize)},
		reiserfstest.Item{Key: reiserfsprim.Key{DirID: 7, ObjID: 10, Offset: 1,
			Type: reiserfsprim.INDIRECT_KEY, Version: 1},
			Body: reiserfstest.IndirectBody(30)},
		reiserfstest.Item{Key: reiserfstest.StatKey(8, 11),
			Body: reiserfstest.StatV2Body(reiserfsprim.FT_REGULAR, 0o644, reiserfstest.BlockSize)},
		reiserfstest.Item{Key: reiserfsprim.Key{DirID: 8, ObjID: 11, Offset: 1,
			Type: reiserfsprim.INDIRECT_KEY, Version: 1},
			Body: reiserfstest.IndirectBody(31)},
	)

	bitmap := make([]byte, reiserfstest.BlockSize)
	for _, block := range []int{16, 17, 20, 30, 31} {
		bitmap[block/8] |= 1 << (block % 8)
	}

	dataBlock := bytes.Repeat([]byte{0xDA}, reiserfstest.BlockSize)
	return reiserfstest.Image{
		BlockCount: 40,
		Blocks: map[uint32][]byte{
			reiserfstest.SuperblockBlock: reiserfstest.Superblock(40, 20, 1),
			17:                           bitmap,
			20:                           reiserfstest.Leaf(items...),
			30:                           dataBlock,
			31:                           dataBlock,
		},
	}
}

func testFS(t *testing.T, rescueMap *ddrescue.RescueMap) (context.Context, *reiserfs.FS) {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	if rescueMap == nil {
		rescueMap = reiserfstest.FinishedMap(imageSize)
	}
	return ctx, reiserfs.New(bytes.NewReader(testImage().Bytes()), rescueMap)
}

// badSuperblockMap has the superblock's sector unrescued.
func badSuperblockMap() *ddrescue.RescueMap {
	return reiserfstest.MustParseMap(
		"0x0 0x10000 +\n0x10000 0x200 -\n0x10200 0x17e00 +\n")
}

const superblockRetryMap = "" +
	"0 * 1\n" +
	"0 65536 -\n" +
	"65536 512 +\n" +
	"66048 97792 -\n"

func TestBitmapBadSuperblock(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, badSuperblockMap())
	var out strings.Builder
	require.NoError(t, rescue.Bitmap(ctx, fs, &out, false))
	assert.Equal(t, superblockRetryMap, out.String())
}

func TestTreeBadSuperblock(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, badSuperblockMap())
	var out strings.Builder
	require.NoError(t, rescue.Tree(ctx, fs, &out, 0, false))
	assert.Equal(t, superblockRetryMap, out.String())
}

func TestFolderBadSuperblock(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, badSuperblockMap())
	var out strings.Builder
	require.NoError(t, rescue.Folder(ctx, fs, &out, []string{"/"}, false))
	assert.Equal(t, superblockRetryMap, out.String())
}

func TestBitmap(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Bitmap(ctx, fs, &out, false))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 8192 +\n"+ // blocks 16-17: superblock + bitmap
		"73728 8192 -\n"+
		"81920 4096 +\n"+ // block 20: the tree
		"86016 36864 -\n"+
		"122880 8192 +\n"+ // blocks 30-31: file data
		"131072 32768 -\n",
		out.String())
}

func TestBitmapMetadataOnly(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Bitmap(ctx, fs, &out, true))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 8192 +\n"+
		"73728 90112 -\n",
		out.String())
}

func TestBitmapUnreadableBitmapBlock(t *testing.T) {
	t.Parallel()

	// Block 17 (the bitmap itself) is unrescued; it must still be
	// emitted so the copying tool retries it.
	ctx, fs := testFS(t, reiserfstest.MustParseMap(
		"0x0 0x11000 +\n0x11000 0x1000 -\n0x12000 0x16000 +\n"))
	var out strings.Builder
	require.NoError(t, rescue.Bitmap(ctx, fs, &out, false))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 69632 -\n"+
		"69632 4096 +\n"+ // block 17, to retry
		"73728 90112 -\n",
		out.String())
}

// leafOutputLines covers the 512-byte units of block 20 that the
// reader consults: the header+item-header sector, then the two item-body
// sectors at the block's tail.
func leafOutputLines() string {
	return "" +
		"81920 512 +\n" +
		"82432 2560 -\n" +
		"84992 1024 +\n"
}

func TestTreeMetadataLevel(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Tree(ctx, fs, &out, 1, false))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 512 +\n"+ // superblock sector
		"66048 15872 -\n"+
		leafOutputLines()+
		"86016 77824 -\n",
		out.String())
}

func TestTreeWithData(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Tree(ctx, fs, &out, 0, false))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 512 +\n"+
		"66048 15872 -\n"+
		leafOutputLines()+
		"86016 36864 -\n"+
		"122880 8192 +\n"+ // data blocks 30-31
		"131072 32768 -\n",
		out.String())
}

func TestTreeUnreadableLeaf(t *testing.T) {
	t.Parallel()

	// The tree's only node is unreadable: its first sector is
	// still emitted for retry, and the rest of the image stays in
	// '-' runs.
	ctx, fs := testFS(t, reiserfstest.MustParseMap(
		"0x0 0x14000 +\n0x14000 0x200 -\n0x14200 0x13e00 +\n"))
	var out strings.Builder
	require.NoError(t, rescue.Tree(ctx, fs, &out, 0, false))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 512 +\n"+
		"66048 15872 -\n"+
		"81920 512 +\n"+
		"82432 81408 -\n",
		out.String())
}

func TestFolderExclusion(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Folder(ctx, fs, &out, []string{"/a", "-/a/b"}, false))
	got := out.String()

	// /a/c/cc's data block (31) is included...
	assert.Contains(t, got, "126976 4096 +\n")
	// ...but nothing reachable only through /a/b is: block 30's
	// bytes stay inside a '-' run.
	assert.NotContains(t, got, "122880 4096 +")
	assert.Contains(t, got, "86016 40960 -\n")
}

func TestFolderMetadataOnly(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Folder(ctx, fs, &out, []string{"/"}, true))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 81920 -\n"+
		leafOutputLines()+
		"86016 77824 -\n",
		out.String())
}

func TestLs(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Ls(ctx, fs, &out, "/", false))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, ". \t1_2\t/", lines[0])
	assert.Equal(t, "..\t0_1", lines[1])
	assert.Equal(t, "a/", lines[2])
	assert.Equal(t, "bar.txt (incomplete block list)", lines[3])
}

func TestLsRecursive(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Ls(ctx, fs, &out, "/", true))
	got := out.String()
	assert.Contains(t, got, "/a/b/bb\n")
	assert.Contains(t, got, "/a/c/cc\n")
	assert.Contains(t, got, "/bar.txt (incomplete block list)\n")
}

func TestLsSubdir(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Ls(ctx, fs, &out, "/a/c", false))
	assert.Contains(t, out.String(), "cc\n")
}

func TestCat(t *testing.T) {
	t.Parallel()

	// bar.txt's stat claims 10 bytes but only 7 were ever stored;
	// exactly those 7 come out.
	ctx, fs := testFS(t, nil)
	var out bytes.Buffer
	require.NoError(t, rescue.Cat(ctx, fs, &out, "/bar.txt"))
	assert.Equal(t, []byte("1234567"), out.Bytes())
}

func TestCatIndirect(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out bytes.Buffer
	require.NoError(t, rescue.Cat(ctx, fs, &out, "/a/c/cc"))
	assert.Equal(t, bytes.Repeat([]byte{0xDA}, reiserfstest.BlockSize), out.Bytes())
}

func TestFind(t *testing.T) {
	t.Parallel()

	ctx, fs := testFS(t, nil)
	var out strings.Builder
	require.NoError(t, rescue.Find(ctx, fs, &out, "cc"))
	assert.Equal(t, "/a/c/cc\n", out.String())

	out.Reset()
	require.NoError(t, rescue.Find(ctx, fs, &out, "no-such-name"))
	assert.Equal(t, "", out.String())
}
