// Package vfs defines the narrow filesystem-driver interface the
// console/VFS glue (spec §4.11) and the filesystem syscalls (§4.15)
// dispatch through, plus an in-memory reference driver used by tests
// and the default boot configuration. Grounded on biscuit's
// fs/super.go and ufs/driver.go vtable shape: a small Driver interface
// any backing filesystem implements, and a Vnode interface any open
// file (regular, directory, console, pipe) implements uniformly so
// read/write dispatch (spec §4.12) never needs to know which kind it
// holds.
package vfs

import (
	"sort"
	"strings"
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
)

// Stat mirrors the subset of POSIX stat(2) fields the core tracks.
type Stat struct {
	Size  int64
	IsDir bool
}

// Dirent is one entry returned by a directory Vnode's Readdir, the
// backing data for sys_getdents.
type Dirent struct {
	Name  string
	IsDir bool
}

// Vnode is an open file of any kind: a regular file, a directory, the
// console, or a pipe endpoint. lseek on non-seekable vnodes (console,
// pipe) returns -ESPIPE, per spec §6.
type Vnode interface {
	Read(buf []byte, off int64) (int, errno.Errno)
	Write(buf []byte, off int64) (int, errno.Errno)
	Stat() (Stat, errno.Errno)
	Lseek(off int64, whence int) (int64, errno.Errno)
	Readdir() ([]Dirent, errno.Errno)
	Close() errno.Errno
}

// Driver is the narrow filesystem-driver interface the VFS dispatches
// path-based syscalls through (spec §6 "external driver-table
// interface"). A conforming implementation need not support every
// operation; unsupported operations return errno.ENOSYS.
type Driver interface {
	Lookup(path string) (Vnode, errno.Errno)
	Create(path string) (Vnode, errno.Errno)
	Mkdir(path string) errno.Errno
	Rmdir(path string) errno.Errno
	Unlink(path string) errno.Errno
}

// MemFS is an in-memory reference Driver: every file lives in a flat
// map keyed by its canonical absolute path, directories are kept in a
// separate set of canonical paths, and a directory's children are found
// by prefix membership. It exists so tests and
// the default boot configuration have a real filesystem without
// needing a block device or on-disk format (spec's block/VFS split
// keeps that concern entirely behind the Driver and block.Device
// interfaces).
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
	dirs  map[string]bool
}

// NewMemFS returns an empty in-memory filesystem with just the root
// directory present.
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string]*memFile),
		dirs:  map[string]bool{"/": true},
	}
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) Read(buf []byte, off int64) (int, errno.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, errno.Ok
	}
	n := copy(buf, f.data[off:])
	return n, errno.Ok
}

func (f *memFile) Write(buf []byte, off int64) (int, errno.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], buf)
	return len(buf), errno.Ok
}

func (f *memFile) size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

// fileVnode adapts a *memFile (or a directory marker) to Vnode,
// tracking nothing of its own beyond what Stat/Readdir need — offset
// state lives in proc's FD slot, not here, matching biscuit's split
// between the vnode and the per-open-instance "file" object.
type fileVnode struct {
	fs     *MemFS
	path   string
	file   *memFile // nil for directories
}

func (v *fileVnode) Read(buf []byte, off int64) (int, errno.Errno) {
	if v.file == nil {
		return 0, errno.EISDIR
	}
	return v.file.Read(buf, off)
}

func (v *fileVnode) Write(buf []byte, off int64) (int, errno.Errno) {
	if v.file == nil {
		return 0, errno.EISDIR
	}
	return v.file.Write(buf, off)
}

func (v *fileVnode) Stat() (Stat, errno.Errno) {
	if v.file == nil {
		return Stat{IsDir: true}, errno.Ok
	}
	return Stat{Size: v.file.size()}, errno.Ok
}

func (v *fileVnode) Lseek(off int64, whence int) (int64, errno.Errno) {
	if v.file == nil {
		return 0, errno.EISDIR
	}
	switch whence {
	case 0:
		return off, errno.Ok
	case 1, 2:
		return off, errno.Ok
	default:
		return 0, errno.EINVAL
	}
}

func (v *fileVnode) Readdir() ([]Dirent, errno.Errno) {
	if v.file != nil {
		return nil, errno.ENOTDIR
	}
	return v.fs.readdir(v.path), errno.Ok
}

func (v *fileVnode) Close() errno.Errno { return errno.Ok }

func clean(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parts := strings.Split(path, "/")
	var out []string
	for _, p := range parts {
		switch p {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	return "/" + strings.Join(out, "/")
}

func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func (fs *MemFS) Lookup(path string) (Vnode, errno.Errno) {
	path = clean(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dirs[path] {
		return &fileVnode{fs: fs, path: path}, errno.Ok
	}
	if f, ok := fs.files[path]; ok {
		return &fileVnode{fs: fs, path: path, file: f}, errno.Ok
	}
	return nil, errno.ENOENT
}

func (fs *MemFS) Create(path string) (Vnode, errno.Errno) {
	path = clean(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.dirs[parent(path)] {
		return nil, errno.ENOENT
	}
	if _, ok := fs.files[path]; ok {
		return nil, errno.EEXIST
	}
	if fs.dirs[path] {
		return nil, errno.EEXIST
	}
	f := &memFile{}
	fs.files[path] = f
	return &fileVnode{fs: fs, path: path, file: f}, errno.Ok
}

func (fs *MemFS) Mkdir(path string) errno.Errno {
	path = clean(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.dirs[parent(path)] {
		return errno.ENOENT
	}
	if fs.dirs[path] || fs.exists(path) {
		return errno.EEXIST
	}
	fs.dirs[path] = true
	return errno.Ok
}

func (fs *MemFS) Rmdir(path string) errno.Errno {
	path = clean(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.dirs[path] {
		return errno.ENOTDIR
	}
	if len(fs.readdirLocked(path)) > 0 {
		return errno.ENOTEMPTY
	}
	delete(fs.dirs, path)
	return errno.Ok
}

func (fs *MemFS) Unlink(path string) errno.Errno {
	path = clean(path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[path]; !ok {
		return errno.ENOENT
	}
	delete(fs.files, path)
	return errno.Ok
}

func (fs *MemFS) exists(path string) bool {
	_, ok := fs.files[path]
	return ok
}

func (fs *MemFS) readdir(path string) []Dirent {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readdirLocked(path)
}

func (fs *MemFS) readdirLocked(path string) []Dirent {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	seen := map[string]bool{}
	var out []Dirent
	add := func(name string, isDir bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, Dirent{Name: name, IsDir: isDir})
	}
	for p := range fs.files {
		if rest, ok := childName(p, prefix); ok {
			add(rest, false)
		}
	}
	for d := range fs.dirs {
		if d == path {
			continue
		}
		if rest, ok := childName(d, prefix); ok {
			add(rest, true)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// childName reports the direct child name of full under prefix, if
// full is a direct (not nested) child.
func childName(full, prefix string) (string, bool) {
	if !strings.HasPrefix(full, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(full, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
