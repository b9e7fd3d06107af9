// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package reiserfsitem

import (
	"bytes"
	"fmt"

	"github.com/google/rescue-tools-reiserfs/lib/binstruct"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

type dirEntryHdr struct {
	Offset        uint32             `bin:"off=0, siz=4"`
	DirID         reiserfsprim.ObjID `bin:"off=4, siz=4"`
	ObjID         reiserfsprim.ObjID `bin:"off=8, siz=4"`
	Location      uint16             `bin:"off=c, siz=2"`
	State         uint16             `bin:"off=e, siz=2"`
	binstruct.End `bin:"off=10"`
}

// DirEntry is one directory entry with its name resolved from the
// item body's shared name area.
type DirEntry struct {
	Offset uint32
	DirID  reiserfsprim.ObjID
	ObjID  reiserfsprim.ObjID
	Name   []byte
	State  uint16
}

func (ent DirEntry) IsDot() bool    { return bytes.Equal(ent.Name, []byte(".")) }
func (ent DirEntry) IsDotDot() bool { return bytes.Equal(ent.Name, []byte("..")) }

// DecodeDirEntries decodes the count entry headers at the front of a
// directory item body and resolves their names.  Names are stored
// back-to-front: the name of entry i runs from its location to the
// location of entry i-1 (or the body end for the first entry),
// truncated at the first NUL.
func DecodeDirEntries(body []byte, count int) ([]DirEntry, error) {
	hdrSize := binstruct.StaticSize(dirEntryHdr{})
	if count*hdrSize > len(body) {
		return nil, fmt.Errorf("directory item body too short: %d entries in %d bytes",
			count, len(body))
	}
	ret := make([]DirEntry, 0, count)
	implicitEnd := len(body)
	for i := 0; i < count; i++ {
		var hdr dirEntryHdr
		if _, err := binstruct.Unmarshal(body[i*hdrSize:], &hdr); err != nil {
			return nil, err
		}
		location := int(hdr.Location)
		if location > implicitEnd {
			return nil, fmt.Errorf("directory entry %d: name location %d past end %d",
				i, location, implicitEnd)
		}
		name := body[location:implicitEnd]
		if nul := bytes.IndexByte(name, 0); nul >= 0 {
			name = name[:nul]
		}
		ret = append(ret, DirEntry{
			Offset: hdr.Offset,
			DirID:  hdr.DirID,
			ObjID:  hdr.ObjID,
			Name:   name,
			State:  hdr.State,
		})
		implicitEnd = location
	}
	return ret, nil
}
