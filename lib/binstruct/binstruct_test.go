// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package binstruct_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
)

type testStruct struct {
	A             uint32  `bin:"off=0, siz=4"`
	B             uint16  `bin:"off=4, siz=2"`
	Pad           [2]byte `bin:"off=6, siz=2"`
	C             uint64  `bin:"off=8, siz=8"`
	Ignored       int     `bin:"-"`
	binstruct.End `bin:"off=10"`
}

func TestStaticSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0x10, binstruct.StaticSize(testStruct{}))
	assert.Equal(t, 4, binstruct.StaticSize(uint32(0)))
	assert.Equal(t, 6, binstruct.StaticSize([3]uint16{}))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	in := testStruct{
		A: 0x11223344,
		B: 0x5566,
		C: 0x8877665544332211,
	}
	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x44, 0x33, 0x22, 0x11,
		0x66, 0x55,
		0, 0,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
	}, dat)

	var out testStruct
	n, err := binstruct.Unmarshal(dat, &out)
	require.NoError(t, err)
	assert.Equal(t, 0x10, n)
	assert.Equal(t, in, out)
}

func TestUnmarshalShort(t *testing.T) {
	t.Parallel()

	var out testStruct
	_, err := binstruct.Unmarshal(make([]byte, 4), &out)
	assert.Error(t, err)
}
