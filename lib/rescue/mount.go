// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package rescue

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/google/rescue-tools-reiserfs/lib/maps"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsitem"
	"github.com/google/rescue-tools-reiserfs/lib/reiserfs/reiserfsprim"
)

// MountRO exposes whatever is readable of the filesystem as a
// read-only FUSE mount.  Lookups that cross unrecovered metadata
// come out as ENOENT; file contents are the same best-effort bytes
// that Cat produces.
func MountRO(ctx context.Context, fs *reiserfs.FS, deviceName, mountpoint string) error {
	if err := fs.Init(ctx); err != nil {
		return err
	}
	srv := &server{
		fs:         fs,
		deviceName: deviceName,
		inodeKeys: map[fuseops.InodeID]reiserfsprim.Key{
			fuseops.RootInodeID: reiserfs.RootKey(),
		},
	}
	return fuseMount(ctx, mountpoint, fuseutil.NewFileSystemServer(srv), &fuse.MountConfig{
		FSName:   deviceName,
		Subtype:  "reiserfs-rec",
		ReadOnly: true,
	})
}

func fuseMount(ctx context.Context, mountpoint string, server fuse.Server, cfg *fuse.MountConfig) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		// Allow mountHandle.Join() returning to cause the
		// "unmount" goroutine to quit.
		ShutdownOnNonError: true,
	})
	mounted := uint32(1)
	grp.Go("unmount", func(ctx context.Context) error {
		<-ctx.Done()
		var err error
		var gotNil bool
		// Keep retrying, because the FS might be busy.
		for atomic.LoadUint32(&mounted) != 0 {
			if _err := fuse.Unmount(mountpoint); _err == nil {
				gotNil = true
			} else if !gotNil {
				err = _err
			}
		}
		if gotNil {
			return nil
		}
		return err
	})
	grp.Go("mount", func(ctx context.Context) error {
		defer atomic.StoreUint32(&mounted, 0)

		cfg.OpContext = ctx
		cfg.ErrorLogger = dlog.StdLogger(ctx, dlog.LogLevelError)
		cfg.DebugLogger = dlog.StdLogger(ctx, dlog.LogLevelDebug)

		mountHandle, err := fuse.Mount(mountpoint, server, cfg)
		if err != nil {
			return err
		}
		dlog.Infof(ctx, "mounted %q", mountpoint)
		return mountHandle.Join(dcontext.HardContext(ctx))
	})
	return grp.Wait()
}

type dirState struct {
	entries []fuseutil.Dirent
}

type fileState struct {
	file *reiserfs.File
}

// server adapts the single-threaded reader to FUSE; mu serializes
// every operation that touches it.
type server struct {
	fuseutil.NotImplementedFileSystem

	fs         *reiserfs.FS
	deviceName string

	mu        sync.Mutex
	inodeKeys map[fuseops.InodeID]reiserfsprim.Key

	lastHandle  uint64
	dirHandles  map[fuseops.HandleID]*dirState
	fileHandles map[fuseops.HandleID]*fileState
}

func (srv *server) newHandle() fuseops.HandleID {
	srv.lastHandle++
	return fuseops.HandleID(srv.lastHandle)
}

func (srv *server) keyForInode(inode fuseops.InodeID) (reiserfsprim.Key, bool) {
	key, ok := srv.inodeKeys[inode]
	return key, ok
}

func statToFUSE(stat reiserfsitem.Stat) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  stat.Size,
		Nlink: stat.NLink,
		Mode:  statToFileMode(stat),
		Atime: time.Unix(int64(stat.ATime), 0),
		Mtime: time.Unix(int64(stat.MTime), 0),
		Ctime: time.Unix(int64(stat.CTime), 0),
		Uid:   stat.UID,
		Gid:   stat.GID,
	}
}

func statToFileMode(stat reiserfsitem.Stat) os.FileMode {
	mode := os.FileMode(stat.Mode & 0o777)
	if stat.Mode&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if stat.Mode&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if stat.Mode&0o1000 != 0 {
		mode |= os.ModeSticky
	}
	switch stat.FileType {
	case reiserfsprim.FT_DIRECTORY:
		mode |= os.ModeDir
	case reiserfsprim.FT_LINK:
		mode |= os.ModeSymlink
	case reiserfsprim.FT_CHARACTER:
		mode |= os.ModeDevice | os.ModeCharDevice
	case reiserfsprim.FT_BLOCK:
		mode |= os.ModeDevice
	case reiserfsprim.FT_FIFO:
		mode |= os.ModeNamedPipe
	case reiserfsprim.FT_SOCKET:
		mode |= os.ModeSocket
	}
	return mode
}

func direntType(ctx context.Context, fs *reiserfs.FS, key reiserfsprim.Key) fuseutil.DirentType {
	item, err := fs.FindItem(ctx, key)
	if err != nil || item == nil {
		return fuseutil.DT_Unknown
	}
	stat, err := item.Stat()
	if err != nil {
		return fuseutil.DT_Unknown
	}
	switch stat.FileType {
	case reiserfsprim.FT_REGULAR:
		return fuseutil.DT_File
	case reiserfsprim.FT_DIRECTORY:
		return fuseutil.DT_Directory
	case reiserfsprim.FT_LINK:
		return fuseutil.DT_Link
	case reiserfsprim.FT_CHARACTER:
		return fuseutil.DT_Char
	case reiserfsprim.FT_BLOCK:
		return fuseutil.DT_Block
	case reiserfsprim.FT_FIFO:
		return fuseutil.DT_FIFO
	case reiserfsprim.FT_SOCKET:
		return fuseutil.DT_Socket
	default:
		return fuseutil.DT_Unknown
	}
}

func (srv *server) StatFS(_ context.Context, op *fuseops.StatFSOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	sb := srv.fs.Superblock
	op.BlockSize = uint32(srv.fs.BlockSize)
	op.IoSize = uint32(srv.fs.BlockSize)
	op.Blocks = uint64(sb.BlockCount)
	op.BlocksFree = uint64(sb.FreeBlocks)
	op.BlocksAvailable = uint64(sb.FreeBlocks)
	return nil
}

func (srv *server) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	parentKey, ok := srv.keyForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	var childKey reiserfsprim.Key
	found := false
	err := srv.fs.DirectoryList(ctx, parentKey, func(entry reiserfsitem.DirEntry) error {
		if string(entry.Name) == op.Name {
			childKey = reiserfsprim.Key{DirID: entry.DirID, ObjID: entry.ObjID,
				Type: reiserfsprim.STAT_KEY, Version: 2}
			found = true
		}
		return nil
	})
	if err != nil {
		return syscall.EIO
	}
	if !found {
		return syscall.ENOENT
	}
	item, err := srv.fs.FindItem(ctx, childKey)
	if err != nil || item == nil {
		return syscall.ENOENT
	}
	stat, err := item.Stat()
	if err != nil {
		return syscall.EIO
	}
	srv.inodeKeys[fuseops.InodeID(childKey.ObjID)] = childKey
	op.Entry = fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(childKey.ObjID),
		Attributes: statToFUSE(stat),
	}
	return nil
}

func (srv *server) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	key, ok := srv.keyForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	item, err := srv.fs.FindItem(ctx, key)
	if err != nil || item == nil {
		return syscall.ENOENT
	}
	stat, err := item.Stat()
	if err != nil {
		return syscall.EIO
	}
	op.Attributes = statToFUSE(stat)
	return nil
}

func (srv *server) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	key, ok := srv.keyForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	var entries []fuseutil.Dirent
	err := srv.fs.DirectoryList(ctx, key, func(entry reiserfsitem.DirEntry) error {
		if entry.IsDot() || entry.IsDotDot() {
			return nil
		}
		childKey := reiserfsprim.Key{DirID: entry.DirID, ObjID: entry.ObjID,
			Type: reiserfsprim.STAT_KEY, Version: 2}
		srv.inodeKeys[fuseops.InodeID(entry.ObjID)] = childKey
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  fuseops.InodeID(entry.ObjID),
			Name:   string(entry.Name),
			Type:   direntType(ctx, srv.fs, childKey),
		})
		return nil
	})
	if err != nil {
		return syscall.EIO
	}

	if srv.dirHandles == nil {
		srv.dirHandles = make(map[fuseops.HandleID]*dirState)
	}
	handle := srv.newHandle()
	srv.dirHandles[handle] = &dirState{entries: entries}
	op.Handle = handle
	return nil
}

func (srv *server) ReadDir(_ context.Context, op *fuseops.ReadDirOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	state, ok := srv.dirHandles[op.Handle]
	if !ok {
		return syscall.EBADF
	}
	for _, dirent := range state.entries {
		if dirent.Offset <= fuseops.DirOffset(op.Offset) {
			continue
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirent)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (srv *server) ReleaseDirHandle(_ context.Context, op *fuseops.ReleaseDirHandleOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if _, ok := srv.dirHandles[op.Handle]; !ok {
		return syscall.EBADF
	}
	delete(srv.dirHandles, op.Handle)
	return nil
}

func (srv *server) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	key, ok := srv.keyForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	file, err := srv.fs.OpenFile(ctx, key)
	if err != nil {
		dlog.Debugf(ctx, "open inode %v: %v", op.Inode, err)
		return syscall.EIO
	}
	if srv.fileHandles == nil {
		srv.fileHandles = make(map[fuseops.HandleID]*fileState)
	}
	handle := srv.newHandle()
	srv.fileHandles[handle] = &fileState{file: file}
	op.Handle = handle
	op.KeepPageCache = true
	return nil
}

func (srv *server) ReadFile(_ context.Context, op *fuseops.ReadFileOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	state, ok := srv.fileHandles[op.Handle]
	if !ok {
		return syscall.EBADF
	}

	var dat []byte
	if op.Dst != nil {
		size := int64(len(op.Dst))
		if op.Size < size {
			size = op.Size
		}
		dat = op.Dst[:size]
	} else {
		dat = make([]byte, op.Size)
		op.Data = [][]byte{dat}
	}

	var err error
	op.BytesRead, err = state.file.ReadAt(dat, op.Offset)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return err
}

func (srv *server) ReleaseFileHandle(_ context.Context, op *fuseops.ReleaseFileHandleOp) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if _, ok := srv.fileHandles[op.Handle]; !ok {
		return syscall.EBADF
	}
	delete(srv.fileHandles, op.Handle)
	return nil
}

func (srv *server) ReadSymlink(_ context.Context, _ *fuseops.ReadSymlinkOp) error {
	return syscall.ENOSYS
}

func (srv *server) GetXattr(_ context.Context, _ *fuseops.GetXattrOp) error { return syscall.ENOSYS }

func (srv *server) ListXattr(_ context.Context, _ *fuseops.ListXattrOp) error {
	return syscall.ENOSYS
}

func (srv *server) Destroy() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, handle := range maps.Keys(srv.dirHandles) {
		delete(srv.dirHandles, handle)
	}
	for _, handle := range maps.Keys(srv.fileHandles) {
		delete(srv.fileHandles, handle)
	}
}
