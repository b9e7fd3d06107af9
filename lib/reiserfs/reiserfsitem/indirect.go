// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfsitem

import (
	"encoding/binary"
	"fmt"
)

// IndirectBlocks decodes an indirect item body: a packed array of
// little-endian block numbers.  A block number of 0 is a hole marker,
// not a real data block; callers must skip it when reading or when
// emitting recovery ranges.
func IndirectBlocks(body []byte) ([]uint32, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("indirect item body is %d bytes, not a multiple of 4", len(body))
	}
	ret := make([]uint32, len(body)/4)
	for i := range ret {
		ret[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return ret, nil
}
