// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package ddrescue

import (
	"fmt"
	"io"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
)

// WriteRanges emits an output map for the copying tool: a `0 * 1`
// header, then alternating '-'/'+' runs.  Runs in `ranges` are
// scaled by mult and offset by partitionStart, and are emitted as
// '+'; everything else up to total is emitted as '-'.  Zero-length
// runs are skipped, and a closing '-' run always extends to total so
// that downstream ddrescuelog boolean logic sees a fully-covered
// interval.
func WriteRanges(w io.Writer, partitionStart, mult uint64, ranges []containers.Range, total uint64) error {
	if _, err := fmt.Fprintln(w, "0 * 1"); err != nil {
		return err
	}
	end := partitionStart
	if end > 0 {
		if _, err := fmt.Fprintf(w, "0 %d -\n", end); err != nil {
			return err
		}
	}
	for _, r := range ranges {
		start := partitionStart + r.Start*mult
		size := r.Size * mult
		if start > end {
			if _, err := fmt.Fprintf(w, "%d %d -\n", end, start-end); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%d %d +\n", start, size); err != nil {
			return err
		}
		end = start + size
	}
	if total > end {
		if _, err := fmt.Fprintf(w, "%d %d -\n", end, total-end); err != nil {
			return err
		}
	}
	return nil
}
