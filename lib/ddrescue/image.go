// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package ddrescue

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// Weights for combining the statuses of the bytes behind one pixel.
// Finished-only pixels render white, pending (not yet trimmed or
// scraped) pink, and any bad byte wins with pure red.
func statusBits(s Status) byte {
	switch s {
	case NonTried:
		return 0
	case Finished:
		return 1
	case NonTrimmed, NonScraped:
		return 2
	case Bad:
		return 4
	default:
		return 4
	}
}

var bitsToColor = [8][3]byte{
	0: {0x80, 0x80, 0x80},
	1: {0xFF, 0xFF, 0xFF},
	2: {0xFF, 0x80, 0x80},
	3: {0xFF, 0xA0, 0xA0},
	4: {0xFF, 0x00, 0x00},
	5: {0xFF, 0x00, 0x00},
	6: {0xFF, 0x00, 0x00},
	7: {0xFF, 0x00, 0x00},
}

func computeBitmap(m *RescueMap, bytesPerPixel uint64) []byte {
	arr := make([]byte, m.Size()/bytesPerPixel+1)
	m.ForEach(func(ent MapEntry) {
		bits := statusBits(ent.Status)
		startOff := ent.Start / bytesPerPixel
		n := (ent.Start%bytesPerPixel + ent.Size - 1) / bytesPerPixel
		for off := uint64(0); off <= n; off++ {
			arr[startOff+off] |= bits
		}
	})
	return arr
}

// linearDims picks a display width near the square root of n, rounded
// to the nearest of 1, 2, or 5 times a power of ten, so that image
// rows correspond to round byte counts.
func linearDims(n int) (width, height int) {
	ideal := int(math.Sqrt(float64(n)))
	if ideal < 1 {
		ideal = 1
	}
	log10 := math.Log10(float64(ideal))
	pow10Low := int(math.Pow(10, math.Floor(log10)))
	pow10High := int(math.Pow(10, math.Ceil(log10)))
	width = pow10High
	for _, option := range []int{pow10Low, pow10Low * 2, pow10Low * 5} {
		if abs(option-ideal) < abs(width-ideal) {
			width = option
		}
	}
	height = (n + width - 1) / width
	return width, height
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// WritePPM renders the rescue map as a binary PPM image, one pixel
// per bytesPerPixel bytes of the source device.
func WritePPM(w io.Writer, m *RescueMap, bytesPerPixel uint64) error {
	arr := computeBitmap(m, bytesPerPixel)
	width, height := linearDims(len(arr))
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6 %d %d 255\n", width, height); err != nil {
		return err
	}
	for _, x := range arr {
		if _, err := bw.Write(bitsToColor[x][:]); err != nil {
			return err
		}
	}
	blank := [3]byte{}
	for i := len(arr); i < width*height; i++ {
		if _, err := bw.Write(blank[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
