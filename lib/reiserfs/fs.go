// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package reiserfs reads as much of a ReiserFS v3 filesystem as the
// rescue map says is trustworthy.  Every block read is
// cross-referenced against the map, so that known-bad data is never
// mistaken for filesystem structure; unreadable paths degrade to
// best-effort results instead of aborting.
package reiserfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/google/rescue-tools-reiserfs/lib/containers"
	"github.com/google/rescue-tools-reiserfs/lib/ddrescue"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfstree"
)

const (
	SectorSize = 512

	// SuperblockByteOffset is re-exported for drivers that emit
	// the degenerate superblock-only retry map.
	SuperblockByteOffset = reiserfstree.SuperblockOffset
)

var (
	ErrBadSuperblock = errors.New("superblock is unreadable or malformed")
	ErrPathNotFound  = errors.New("path not found")
)

// SectorCollector receives the sectors that the reader was obliged to
// consult; traversal drivers turn them into retry ranges.
type SectorCollector interface {
	Append(sector uint64)
}

// SectorList collects sectors in visit order, duplicates included.
type SectorList struct {
	Sectors []uint64
}

func (l *SectorList) Append(sector uint64) {
	l.Sectors = append(l.Sectors, sector)
}

// SectorSet collects distinct sectors.
type SectorSet struct {
	Set containers.Set[uint64]
}

func (s *SectorSet) Append(sector uint64) {
	if s.Set == nil {
		s.Set = make(containers.Set[uint64])
	}
	s.Set.Insert(sector)
}

// FS combines the partial image, its rescue map, and the decoded
// superblock.  It is single-threaded; Sectors and Incomplete are
// reset by each traversal driver.
type FS struct {
	File      io.ReaderAt
	RescueMap *ddrescue.RescueMap

	// PartitionStart is the byte offset of the filesystem within
	// the image, for full-disk images.
	PartitionStart uint64

	Superblock      *reiserfstree.Superblock
	BlockSize       uint64
	SectorsPerBlock uint64

	Sectors    SectorCollector
	Incomplete bool

	nodeCache containers.LRUCache[nodeCacheKey, nodeCacheVal]
}

type nodeCacheKey struct {
	Block       uint32
	PartialOnly bool
}

type nodeCacheVal struct {
	Complete bool
	Node     *reiserfstree.Node
}

func New(file io.ReaderAt, rescueMap *ddrescue.RescueMap) *FS {
	return &FS{
		File:      file,
		RescueMap: rescueMap,

		// Fake values, replaced by Init.
		BlockSize:       SectorSize,
		SectorsPerBlock: 1,

		Sectors: new(SectorList),
	}
}

// Init records the superblock's sector as touched metadata, then
// decodes the superblock if the rescue map trusts it.  On error the
// filesystem geometry is unknown and callers must fall back to their
// degenerate output.
func (fs *FS) Init(ctx context.Context) error {
	fs.Sectors.Append(reiserfstree.SuperblockOffset / SectorSize)
	status, err := fs.RescueMap.Get(reiserfstree.SuperblockOffset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSuperblock, err)
	}
	if status != ddrescue.Finished {
		return fmt.Errorf("%w: rescue status is %v", ErrBadSuperblock, status)
	}

	buf := make([]byte, 0x50)
	if _, err := fs.File.ReadAt(buf, int64(fs.PartitionStart+reiserfstree.SuperblockOffset)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSuperblock, err)
	}
	sb, err := reiserfstree.UnpackSuperblock(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSuperblock, err)
	}
	fs.Superblock = &sb
	fs.BlockSize = uint64(sb.BlockSize)
	fs.SectorsPerBlock = fs.BlockSize / SectorSize
	dlog.Debugf(ctx, "superblock: blocks=%v free=%v root=%v height=%v blocksize=%v",
		sb.BlockCount, sb.FreeBlocks, sb.RootBlock, sb.TreeHeight, sb.BlockSize)
	return nil
}

// ReadBlock reads one filesystem block from the image.  The rescue
// map is not consulted; that is the caller's job.
func (fs *FS) ReadBlock(block uint32) ([]byte, error) {
	buf := make([]byte, fs.BlockSize)
	if _, err := fs.File.ReadAt(buf, int64(fs.PartitionStart+uint64(block)*fs.BlockSize)); err != nil {
		return nil, fmt.Errorf("read block %v: %w", block, err)
	}
	return buf, nil
}

// IsBlockComplete reports whether every sector of the block has been
// rescued.
func (fs *FS) IsBlockComplete(block uint32) bool {
	start := uint64(block) * fs.BlockSize
	for pos := start; pos < start+fs.BlockSize; pos += SectorSize {
		status, err := fs.RescueMap.Get(pos)
		if err != nil || status != ddrescue.Finished {
			return false
		}
	}
	return true
}

// ReadNode reads and decodes a tree node, recording which of its
// sectors were consulted and checking each against the rescue map.
//
// The first sector must be trustworthy or nothing is returned.  The
// remaining occupied sectors (item headers from the left, item bodies
// from the right on leaves; one left run on internal nodes) only
// degrade the result: the node is returned with complete=false so the
// caller can decide whether its children are still reachable.
//
// partialOnly skips recording the block's first sector; the other
// occupied sectors are recorded either way.  Results are memoized per
// (block, partialOnly), so the recording happens once per cache
// residency.
func (fs *FS) ReadNode(ctx context.Context, block uint32, partialOnly bool) (complete bool, node *reiserfstree.Node) {
	val := fs.nodeCache.GetOrElse(nodeCacheKey{Block: block, PartialOnly: partialOnly}, func() nodeCacheVal {
		return fs.readNodeUncached(ctx, block, partialOnly)
	})
	return val.Complete, val.Node
}

func (fs *FS) readNodeUncached(ctx context.Context, block uint32, partialOnly bool) nodeCacheVal {
	if !partialOnly {
		fs.Sectors.Append(uint64(block) * fs.SectorsPerBlock)
	}
	if status, err := fs.RescueMap.Get(uint64(block) * fs.BlockSize); err != nil || status != ddrescue.Finished {
		return nodeCacheVal{}
	}
	buf, err := fs.ReadBlock(block)
	if err != nil {
		dlog.Debugf(ctx, "block %v: %v", block, err)
		return nodeCacheVal{}
	}
	node, err := reiserfstree.UnpackNode(buf)
	if err != nil {
		dlog.Debugf(ctx, "block %v: %v", block, err)
		return nodeCacheVal{}
	}

	var sizeLeft, sizeRight uint64
	if node.Leaf() {
		sizeLeft = reiserfstree.NodeHeaderSize + uint64(node.ItemCount)*reiserfstree.ItemHdrSize
		if occupied := sizeLeft + uint64(node.FreeSpace); occupied < fs.BlockSize {
			sizeRight = fs.BlockSize - occupied
		}
	} else {
		if uint64(node.FreeSpace) < fs.BlockSize {
			sizeLeft = fs.BlockSize - uint64(node.FreeSpace)
		}
	}

	occupied := make(containers.Set[uint64])
	for off := uint64(1); off < ceilDiv(sizeLeft, SectorSize); off++ {
		occupied.Insert(off)
	}
	for off := fs.SectorsPerBlock - ceilDiv(sizeRight, SectorSize); off < fs.SectorsPerBlock; off++ {
		occupied.Insert(off)
	}

	incomplete := false
	for off := range occupied {
		if off == 0 {
			continue
		}
		fs.Sectors.Append(uint64(block)*fs.SectorsPerBlock + off)
		if !incomplete {
			status, err := fs.RescueMap.Get(uint64(block)*fs.BlockSize + off*SectorSize)
			if err != nil || status != ddrescue.Finished {
				incomplete = true
			}
		}
	}
	return nodeCacheVal{Complete: !incomplete, Node: node}
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// NodeCacheStats returns the hit/miss counters of the node-decode
// memoization.
func (fs *FS) NodeCacheStats() (hits, misses int64) {
	return fs.nodeCache.Hits, fs.nodeCache.Misses
}

// FindItem walks the tree from the root and returns the leaf item
// with exactly the given key, or nil if the key is absent or the path
// to it crosses an unreadable node.
func (fs *FS) FindItem(ctx context.Context, key reiserfsprim.Key) (*reiserfstree.Item, error) {
	treeBlock := fs.Superblock.RootBlock
	for depth := 0; ; depth++ {
		if depth > 64 {
			return nil, fmt.Errorf("tree deeper than 64 levels; looping pointers?")
		}
		complete, node := fs.ReadNode(ctx, treeBlock, false)
		if !complete {
			return nil, nil
		}
		if node.Leaf() {
			return node.ItemFind(key)
		}
		child, err := node.PtrFind(key)
		if err != nil {
			return nil, err
		}
		treeBlock = child
	}
}

// IterItemsInRange calls fn for every readable item with
// keyStart <= key < keyEnd, in tree order.  Unreadable subtrees are
// skipped.
func (fs *FS) IterItemsInRange(ctx context.Context, keyStart, keyEnd reiserfsprim.Key, fn func(reiserfstree.Item) error) error {
	return fs.iterItemsInRange(ctx, keyStart, keyEnd, fs.Superblock.RootBlock, fn)
}

func (fs *FS) iterItemsInRange(ctx context.Context, keyStart, keyEnd reiserfsprim.Key, treeBlock uint32, fn func(reiserfstree.Item) error) error {
	complete, node := fs.ReadNode(ctx, treeBlock, false)
	if !complete {
		return nil
	}
	if node.Leaf() {
		items, err := node.ItemFindRange(keyStart, keyEnd)
		if err != nil {
			dlog.Debugf(ctx, "block %v: %v", treeBlock, err)
			return nil
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}
	children, err := node.PtrFindRange(keyStart, keyEnd)
	if err != nil {
		dlog.Debugf(ctx, "block %v: %v", treeBlock, err)
		return nil
	}
	for _, child := range children {
		if err := fs.iterItemsInRange(ctx, keyStart, keyEnd, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// FileBlock is one element of a regular file's content, in file
// order: either a pointer to a data block (Block != 0), a sparse hole
// of one block (Block == 0, Data == nil), or literal bytes (Data !=
// nil) from a direct item or a sub-block hole.
type FileBlock struct {
	Block uint32
	Data  []byte
}

// RegularBlockList yields a regular file's content blocks.  Gaps in
// the item sequence are synthesized as holes and mark the result
// incomplete, as does a total length short of the stat-reported size.
func (fs *FS) RegularBlockList(ctx context.Context, key reiserfsprim.Key, fn func(FileBlock) error) error {
	expectedSize := int64(-1)
	item, err := fs.FindItem(ctx, key)
	if err != nil {
		return err
	}
	if item != nil {
		if stat, err := item.Stat(); err == nil {
			expectedSize = int64(stat.Size)
		} else {
			dlog.Debugf(ctx, "stat %v: %v", key, err)
		}
	}

	keyStart := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID, Offset: 1,
		Type: reiserfsprim.STAT_KEY, Version: 1}
	keyEnd := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID + 1, Offset: 0,
		Type: reiserfsprim.STAT_KEY, Version: 1}
	// Item offsets are 1-based.
	size := uint64(1)
	err = fs.IterItemsInRange(ctx, keyStart, keyEnd, func(item reiserfstree.Item) error {
		if item.Key.Offset < size {
			fs.Incomplete = true
			return nil
		}
		if item.Key.Offset > size {
			fs.Incomplete = true
			missing := item.Key.Offset - size
			for i := uint64(0); i < missing/fs.BlockSize; i++ {
				if err := fn(FileBlock{Block: 0}); err != nil {
					return err
				}
			}
			if tail := missing % fs.BlockSize; tail != 0 {
				if err := fn(FileBlock{Data: make([]byte, tail)}); err != nil {
					return err
				}
			}
			size += missing
		}
		switch item.Key.Type {
		case reiserfsprim.INDIRECT_KEY:
			blocks, err := item.IndirectBlocks()
			if err != nil {
				fs.Incomplete = true
				return nil
			}
			size += uint64(len(blocks)) * fs.BlockSize
			for _, block := range blocks {
				if err := fn(FileBlock{Block: block}); err != nil {
					return err
				}
			}
		case reiserfsprim.DIRECT_KEY:
			size += uint64(len(item.Body))
			if err := fn(FileBlock{Data: item.Body}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if expectedSize >= 0 && int64(size-1) < expectedSize {
		fs.Incomplete = true
	}
	return nil
}

// DirectoryList yields a directory's entries in item order.  A total
// item-body length that disagrees with the stat-reported size marks
// the result incomplete.
func (fs *FS) DirectoryList(ctx context.Context, key reiserfsprim.Key, fn func(reiserfsitem.DirEntry) error) error {
	expectedSize := int64(-1)
	item, err := fs.FindItem(ctx, key)
	if err != nil {
		return err
	}
	if item != nil {
		if stat, err := item.Stat(); err == nil {
			expectedSize = int64(stat.Size)
		} else {
			dlog.Debugf(ctx, "stat %v: %v", key, err)
		}
	}

	// Directory keys mostly use the version-1 format.
	keyStart := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID, Offset: 1,
		Type: reiserfsprim.DIRECTORY_KEY, Version: 1}
	keyEnd := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID + 1, Offset: 0,
		Type: reiserfsprim.STAT_KEY, Version: 1}
	size := uint64(0)
	err = fs.IterItemsInRange(ctx, keyStart, keyEnd, func(item reiserfstree.Item) error {
		size += uint64(len(item.Body))
		entries, err := item.DirEntries()
		if err != nil {
			fs.Incomplete = true
			return nil
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if int64(size) != expectedSize {
		fs.Incomplete = true
	}
	return nil
}

// FileIndirectBlocks yields the data-block pointers of a regular
// file, holes included, without synthesizing anything.
func (fs *FS) FileIndirectBlocks(ctx context.Context, key reiserfsprim.Key, fn func(uint32) error) error {
	keyStart := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID, Offset: 1,
		Type: reiserfsprim.INDIRECT_KEY, Version: 1}
	keyEnd := reiserfsprim.Key{DirID: key.DirID, ObjID: key.ObjID + 1, Offset: 0,
		Type: reiserfsprim.STAT_KEY, Version: 1}
	return fs.IterItemsInRange(ctx, keyStart, keyEnd, func(item reiserfstree.Item) error {
		if item.Key.Type != reiserfsprim.INDIRECT_KEY {
			return nil
		}
		blocks, err := item.IndirectBlocks()
		if err != nil {
			fs.Incomplete = true
			return nil
		}
		for _, block := range blocks {
			if err := fn(block); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterLeafs visits every reachable leaf.  Per pass, children ahead of
// the current block are visited in the same pass and children behind
// it are deferred to the next pass, so each pass seeks monotonically
// forward across the image.
func (fs *FS) IterLeafs(ctx context.Context, fn func(*reiserfstree.Node) error) error {
	_, err := fs.WalkTree(ctx, 0, false, func(node *reiserfstree.Node) error {
		if node.Leaf() {
			return fn(node)
		}
		return nil
	})
	return err
}

// TreeWalkStats counts what a WalkTree saw: pointers followed, nodes
// that could not be used, and the subset of those whose header was
// readable but whose items were not.
type TreeWalkStats struct {
	Found           int
	IncompleteCount int
	PartialCount    int
}

// WalkTree visits every node above levelLimit with the two-heap
// forward-seek strategy.  partialOnly is passed through to ReadNode.
func (fs *FS) WalkTree(ctx context.Context, levelLimit int, partialOnly bool, fn func(*reiserfstree.Node) error) (TreeWalkStats, error) {
	walk := treeWalk{fs: fs}
	err := walk.run(ctx, levelLimit, partialOnly, fn)
	return TreeWalkStats{
		Found:           walk.Found,
		IncompleteCount: walk.IncompleteCount,
		PartialCount:    walk.PartialCount,
	}, err
}

type blockLevel struct {
	Block uint32
	Level int16
}

func blockLevelLess(a, b blockLevel) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	return a.Level < b.Level
}

// treeWalk is the two-heap breadth-ish walk shared by IterLeafs and
// the tree traversal driver.
type treeWalk struct {
	fs *FS

	Found           int
	IncompleteCount int
	PartialCount    int
}

func (w *treeWalk) run(ctx context.Context, levelLimit int, partialOnly bool, fn func(*reiserfstree.Node) error) error {
	heap := &containers.Heap[blockLevel]{Less: blockLevelLess}
	nextPass := &containers.Heap[blockLevel]{Less: blockLevelLess}
	nextPass.Push(blockLevel{Block: w.fs.Superblock.RootBlock, Level: -1})
	w.Found = 1

	for nextPass.Len() > 0 {
		heap, nextPass = nextPass, heap

		for heap.Len() > 0 {
			cur, _ := heap.Pop()
			complete, node := w.fs.ReadNode(ctx, cur.Block, partialOnly)
			if !complete {
				w.IncompleteCount++
				if node != nil {
					w.PartialCount++
				}
				continue
			}
			if int(node.Level) <= levelLimit {
				continue
			}
			if !node.Leaf() {
				children, err := node.PtrBlocks()
				if err != nil {
					dlog.Debugf(ctx, "block %v: %v", cur.Block, err)
					continue
				}
				for _, child := range children {
					w.Found++
					next := blockLevel{Block: child, Level: int16(node.Level) - 1}
					if child < cur.Block {
						nextPass.Push(next)
					} else {
						heap.Push(next)
					}
				}
			}
			if err := fn(node); err != nil {
				return err
			}
		}
	}
	return nil
}
