// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package ddrescue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
)

const sampleMap = `# Mapfile. Created by GNU ddrescue version 1.25
# Command line: ddrescue /dev/sdb disk.img disk.map
# Start time:   2020-05-01 10:00:00
# current_pos  current_status  current_pass
0x00000000     +               1
#      pos        size  status
0x00000000  0x00010000  +
# a stray comment
0x00010000  0x00008000  -
0x00018000  0x00008000  ?
`

func TestParse(t *testing.T) {
	t.Parallel()

	m, err := Parse(strings.NewReader(sampleMap))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20000), m.Size())

	var sum uint64
	m.ForEach(func(ent MapEntry) {
		sum += ent.Size
	})
	assert.Equal(t, m.Size(), sum)

	for _, tc := range []struct {
		pos  uint64
		want Status
	}{
		{0, Finished},
		{0xFFFF, Finished},
		{0x10000, Bad},
		{0x17FFF, Bad},
		{0x18000, NonTried},
		{0x1FFFF, NonTried},
	} {
		got, err := m.Get(tc.pos)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "pos=%#x", tc.pos)
	}

	_, err = m.Get(0x20000)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestParseOffset(t *testing.T) {
	t.Parallel()

	m, err := Parse(strings.NewReader(sampleMap))
	require.NoError(t, err)
	m.Offset = 0x10000

	got, err := m.Get(0)
	require.NoError(t, err)
	assert.Equal(t, Bad, got)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	for name, in := range map[string]string{
		"empty":      "",
		"fields":     "# h\n0 + 1\n0x0 0x10\n",
		"status":     "# h\n0 + 1\n0x0 0x10 %\n",
		"gap":        "# h\n0 + 1\n0x0 0x10 +\n0x20 0x10 -\n",
		"overlap":    "# h\n0 + 1\n0x0 0x10 +\n0x8 0x10 -\n",
		"zero-size":  "# h\n0 + 1\n0x0 0x0 +\n",
		"bad-number": "# h\n0 + 1\nzz 0x10 +\n",
	} {
		in := in
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMapParse)
		})
	}
}

func TestWriteRanges(t *testing.T) {
	t.Parallel()

	var l containers.RangeList
	require.NoError(t, l.Add(128, 1))

	var sb strings.Builder
	require.NoError(t, WriteRanges(&sb, 0, 512, l.Items, 0x20000))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 65536 -\n"+
		"65536 512 +\n"+
		"66048 65024 -\n",
		sb.String())
}

func TestWriteRangesPartitionPrefix(t *testing.T) {
	t.Parallel()

	var l containers.RangeList
	require.NoError(t, l.Add(0, 16))

	var sb strings.Builder
	require.NoError(t, WriteRanges(&sb, 4096, 512, l.Items, 0x10000))
	assert.Equal(t, ""+
		"0 * 1\n"+
		"0 4096 -\n"+
		"4096 8192 +\n"+
		"12288 53248 -\n",
		sb.String())
}
