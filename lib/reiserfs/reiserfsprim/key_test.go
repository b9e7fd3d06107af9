// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfsprim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	keys := []Key{
		{DirID: 1, ObjID: 2, Offset: 0, Type: STAT_KEY, Version: 1},
		{DirID: 1, ObjID: 2, Offset: 1, Type: DIRECTORY_KEY, Version: 1},
		{DirID: 7, ObjID: 8, Offset: 4097, Type: INDIRECT_KEY, Version: 1},
		{DirID: 7, ObjID: 8, Offset: 123, Type: DIRECT_KEY, Version: 1},
		{DirID: 7, ObjID: 8, Offset: 555, Type: ANY_KEY, Version: 1},
		{DirID: 100, ObjID: 200, Offset: 4097, Type: INDIRECT_KEY, Version: 2},
		{DirID: 100, ObjID: 200, Offset: 300, Type: DIRECT_KEY, Version: 2},
		{DirID: 100, ObjID: 200, Offset: 1, Type: DIRECTORY_KEY, Version: 2},
	}
	for _, key := range keys {
		packed := key.Pack()
		got, err := UnpackKeyVersion(packed[:], key.Version)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
}

func TestKeyVersionInference(t *testing.T) {
	t.Parallel()

	// Low nibble of the offset+type word 0 or 15 means version 1.
	v1 := Key{DirID: 1, ObjID: 2, Offset: 16, Type: DIRECTORY_KEY, Version: 1}
	packed := v1.Pack()
	got, err := UnpackKey(packed[:])
	require.NoError(t, err)
	assert.Equal(t, v1, got)

	v2 := Key{DirID: 1, ObjID: 2, Offset: 17, Type: DIRECT_KEY, Version: 2}
	packed = v2.Pack()
	got, err = UnpackKey(packed[:])
	require.NoError(t, err)
	assert.Equal(t, v2, got)
}

func TestKeyUnpackInvalid(t *testing.T) {
	t.Parallel()

	_, err := UnpackKey(make([]byte, 8))
	assert.Error(t, err)

	// A v1 uniqueness value that is not in the dictionary.
	var dat [KeySize]byte
	dat[12] = 0x2A // word = 0x2A00000000; low nibble 0 -> v1
	_, err = UnpackKey(dat[:])
	assert.Error(t, err)
}

func TestKeyCompare(t *testing.T) {
	t.Parallel()

	a := Key{DirID: 1, ObjID: 2, Offset: 0, Type: STAT_KEY, Version: 2}
	b := Key{DirID: 1, ObjID: 2, Offset: 1, Type: DIRECTORY_KEY, Version: 1}
	c := Key{DirID: 1, ObjID: 3, Offset: 0, Type: STAT_KEY, Version: 2}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Negative(t, b.Compare(c))
	assert.Zero(t, a.Compare(a))
}

func TestKeyComparableWith(t *testing.T) {
	t.Parallel()

	stat1 := Key{Type: STAT_KEY, Version: 1}
	dir1 := Key{Offset: 1, Type: DIRECTORY_KEY, Version: 1}
	dir2 := Key{Offset: 1, Type: DIRECTORY_KEY, Version: 2}

	assert.True(t, stat1.ComparableWith(dir1))
	assert.True(t, dir2.ComparableWith(stat1))
	assert.True(t, dir2.ComparableWith(dir2))
	assert.False(t, dir1.ComparableWith(dir2))
}

func TestSplitMode(t *testing.T) {
	t.Parallel()

	ft, perm := SplitMode(0o100644)
	assert.Equal(t, FT_REGULAR, ft)
	assert.Equal(t, uint16(0o644), perm)

	ft, _ = SplitMode(0o040755)
	assert.Equal(t, FT_DIRECTORY, ft)
}
