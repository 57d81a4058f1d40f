// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/tonefs/tonefs/lib/decode"
	"github.com/tonefs/tonefs/lib/transcode"
)

// dirNode mirrors one source directory with audio names translated.
type dirNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeStatfser = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	full := filepath.Join(d.path, name)
	info, err := os.Lstat(full)
	if err == nil {
		switch {
		case info.IsDir():
			child := d.NewPersistentInode(ctx, &dirNode{
				options: d.options,
				path:    full,
			}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
			out.Mode = syscall.S_IFDIR | 0o555
			return child, 0
		case info.Mode()&os.ModeSymlink != 0:
			child := d.NewPersistentInode(ctx, &symlinkNode{path: full},
				gofuse.StableAttr{Mode: syscall.S_IFLNK})
			out.Mode = syscall.S_IFLNK | 0o444
			return child, 0
		case decode.Decodable(full):
			// Sources appear only under their translated names.
			return nil, syscall.ENOENT
		default:
			child := d.NewPersistentInode(ctx, &passthroughNode{path: full},
				gofuse.StableAttr{Mode: syscall.S_IFREG})
			fillEntry(full, out)
			return child, 0
		}
	}

	if source, ok := sourceFor(d.path, name); ok {
		node := &audioFileNode{options: d.options, source: source}
		child := d.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
		node.getattr(&out.Attr)
		return child, 0
	}
	return nil, syscall.ENOENT
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	dirents, err := os.ReadDir(d.path)
	if err != nil {
		d.options.Logger.Error("reading source directory", "path", d.path, "error", err)
		return nil, syscall.EIO
	}

	seen := make(map[string]bool)
	var entries []fuse.DirEntry
	for _, ent := range dirents {
		name := ent.Name()
		mode := uint32(syscall.S_IFREG)
		switch {
		case ent.IsDir():
			mode = syscall.S_IFDIR
		case ent.Type()&os.ModeSymlink != 0:
			mode = syscall.S_IFLNK
		case ent.Type().IsRegular():
			name, _ = TranslateName(name)
		default:
			continue
		}
		// Two sources can translate to the same MP3 name; list the
		// first and let lookup resolve by extension preference.
		if seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return &sliceDirStream{entries: entries}, 0
}

func (d *dirNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	var st unix.Statfs_t
	if err := unix.Statfs(d.path, &st); err != nil {
		return gofuse.ToErrno(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namelen)
	out.Frsize = uint32(st.Frsize)
	return 0
}

// fillEntry copies source file attributes into a lookup reply.
func fillEntry(path string, out *fuse.EntryOut) {
	var st syscall.Stat_t
	if syscall.Lstat(path, &st) == nil {
		out.Attr.FromStat(&st)
	}
}

// audioFileNode is one source track exposed as an MP3. Attribute and
// read requests go through the shared transcode cache, so the size a
// getattr reports and the bytes a read returns come from the same
// pipeline.
type audioFileNode struct {
	gofuse.Inode
	options *Options
	source  string
}

var _ gofuse.InodeEmbedder = (*audioFileNode)(nil)
var _ gofuse.NodeGetattrer = (*audioFileNode)(nil)
var _ gofuse.NodeOpener = (*audioFileNode)(nil)

func (a *audioFileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	a.getattr(&out.Attr)
	return 0
}

func (a *audioFileNode) getattr(out *fuse.Attr) {
	var st syscall.Stat_t
	if syscall.Lstat(a.source, &st) == nil {
		out.FromStat(&st)
	}
	out.Mode = syscall.S_IFREG | 0o444

	handle, err := a.options.Cache.Acquire(a.source)
	if err != nil {
		// Leave the source size in place; open will report the
		// failure properly.
		a.options.Logger.Warn("size unavailable", "path", a.source, "error", err)
		return
	}
	out.Size = uint64(handle.Size())
	out.Blocks = (out.Size + 511) / 512
	handle.Release()
}

func (a *audioFileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	handle, err := a.options.Cache.Acquire(a.source)
	if err != nil {
		if a.options.PassthroughOnError {
			a.options.Logger.Warn("pipeline failed, serving source bytes",
				"path", a.source, "error", err)
			return openPassthrough(a.source)
		}
		a.options.Logger.Error("opening pipeline", "path", a.source, "error", err)
		return nil, 0, syscall.EIO
	}
	if handle.Transcoder().State() == transcode.StateError && a.options.PassthroughOnError {
		// A pipeline that failed mid-stream stays cached; serve the
		// source verbatim instead of feeding EIO to every reader.
		err := handle.Transcoder().Err()
		handle.Release()
		a.options.Logger.Warn("pipeline failed, serving source bytes",
			"path", a.source, "error", err)
		return openPassthrough(a.source)
	}
	return &transcodeHandle{options: a.options, handle: handle}, 0, 0
}

// transcodeHandle adapts a cache handle to a FUSE file handle.
type transcodeHandle struct {
	options *Options
	handle  *transcode.Handle
}

var _ gofuse.FileReader = (*transcodeHandle)(nil)
var _ gofuse.FileReleaser = (*transcodeHandle)(nil)

func (h *transcodeHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.handle.ReadAt(ctx, dest, off)
	switch {
	case err == nil:
		return fuse.ReadResultData(dest[:n]), 0
	case errors.Is(err, io.EOF):
		return fuse.ReadResultData(nil), 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, syscall.EINTR
	default:
		h.options.Logger.Error("read failed", "offset", off, "error", err)
		return nil, syscall.EIO
	}
}

func (h *transcodeHandle) Release(ctx context.Context) syscall.Errno {
	h.handle.Release()
	return 0
}

// passthroughNode serves a non-audio source file read-only.
type passthroughNode struct {
	gofuse.Inode
	path string
}

var _ gofuse.InodeEmbedder = (*passthroughNode)(nil)
var _ gofuse.NodeGetattrer = (*passthroughNode)(nil)
var _ gofuse.NodeOpener = (*passthroughNode)(nil)

func (p *passthroughNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st syscall.Stat_t
	if err := syscall.Lstat(p.path, &st); err != nil {
		return gofuse.ToErrno(err)
	}
	out.FromStat(&st)
	return 0
}

func (p *passthroughNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return openPassthrough(p.path)
}

func openPassthrough(path string) (gofuse.FileHandle, uint32, syscall.Errno) {
	fd, err := syscall.Open(path, syscall.O_RDONLY, 0)
	if err != nil {
		return nil, 0, gofuse.ToErrno(err)
	}
	return gofuse.NewLoopbackFile(fd), fuse.FOPEN_KEEP_CACHE, 0
}

// symlinkNode passes a source symlink through verbatim.
type symlinkNode struct {
	gofuse.Inode
	path string
}

var _ gofuse.InodeEmbedder = (*symlinkNode)(nil)
var _ gofuse.NodeReadlinker = (*symlinkNode)(nil)

func (s *symlinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := os.Readlink(s.path)
	if err != nil {
		return nil, gofuse.ToErrno(err)
	}
	return []byte(target), 0
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
