// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfsitem

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

func TestUnpackStatV1(t *testing.T) {
	t.Parallel()

	v1, err := binstruct.Marshal(statV1{
		Mode:  0o100644,
		NLink: 2,
		UID:   1000,
		GID:   100,
		Size:  1234,
		ATime: 10,
		MTime: 20,
		CTime: 30,
	})
	require.NoError(t, err)
	require.Len(t, v1, 32)

	stat, err := UnpackStat(v1)
	require.NoError(t, err)
	assert.Equal(t, Stat{
		Mode:     0o644,
		FileType: reiserfsprim.FT_REGULAR,
		NLink:    2,
		UID:      1000,
		GID:      100,
		Size:     1234,
		ATime:    10,
		MTime:    20,
		CTime:    30,
	}, stat)
}

func TestUnpackStatV2(t *testing.T) {
	t.Parallel()

	v2, err := binstruct.Marshal(statV2{
		Mode:  0o040755,
		NLink: 3,
		Size:  1 << 33,
		UID:   1000,
		GID:   100,
		ATime: 10,
		MTime: 20,
		CTime: 30,
	})
	require.NoError(t, err)
	require.Len(t, v2, 44)

	stat, err := UnpackStat(v2)
	require.NoError(t, err)
	assert.Equal(t, reiserfsprim.FT_DIRECTORY, stat.FileType)
	assert.Equal(t, uint16(0o755), stat.Mode)
	assert.Equal(t, uint32(3), stat.NLink)
	assert.Equal(t, uint64(1)<<33, stat.Size)
	assert.Equal(t, uint32(1000), stat.UID)
	assert.Equal(t, uint32(100), stat.GID)
}

func TestUnpackStatMalformed(t *testing.T) {
	t.Parallel()

	_, err := UnpackStat(make([]byte, 10))
	assert.Error(t, err)
}

// buildDirItem packs entry headers at the front and names at the
// back, the way a directory item body is laid out on disk.
func buildDirItem(t *testing.T, names ...string) []byte {
	t.Helper()
	hdrSize := binstruct.StaticSize(dirEntryHdr{})
	size := len(names) * hdrSize
	for _, name := range names {
		size += len(name)
	}
	body := make([]byte, size)
	nameEnd := len(body)
	for i, name := range names {
		nameStart := nameEnd - len(name)
		copy(body[nameStart:], name)
		hdr, err := binstruct.Marshal(dirEntryHdr{
			Offset:   uint32(i + 1),
			DirID:    1,
			ObjID:    reiserfsprim.ObjID(100 + i),
			Location: uint16(nameStart),
			State:    4,
		})
		require.NoError(t, err)
		copy(body[i*hdrSize:], hdr)
		nameEnd = nameStart
	}
	return body
}

func TestDecodeDirEntries(t *testing.T) {
	t.Parallel()

	body := buildDirItem(t, ".", "..", "foo")
	entries, err := DecodeDirEntries(body, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].IsDot())
	assert.True(t, entries[1].IsDotDot())
	assert.Equal(t, []byte("foo"), entries[2].Name)
	assert.Equal(t, reiserfsprim.ObjID(102), entries[2].ObjID)

	// Idempotent: re-decoding the same body yields the same entries.
	again, err := DecodeDirEntries(body, 3)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestDecodeDirEntriesNulPadding(t *testing.T) {
	t.Parallel()

	// Names are 8-byte aligned on disk, padded with NULs; the
	// decoded name stops at the first NUL.
	body := buildDirItem(t, "ab\x00\x00\x00\x00\x00\x00")
	entries, err := DecodeDirEntries(body, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), entries[0].Name)
}

func TestDecodeDirEntriesMalformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeDirEntries(make([]byte, 8), 3)
	assert.Error(t, err)
}

func TestIndirectBlocks(t *testing.T) {
	t.Parallel()

	body := make([]byte, 12)
	binary.LittleEndian.PutUint32(body[0:], 7)
	binary.LittleEndian.PutUint32(body[4:], 0)
	binary.LittleEndian.PutUint32(body[8:], 9)

	blocks, err := IndirectBlocks(body)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 0, 9}, blocks)

	_, err = IndirectBlocks(make([]byte, 5))
	assert.Error(t, err)
}
