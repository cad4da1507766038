// Package adfsfuse serves an ADFS volume as a read-only FUSE file system.
//
// The directory tree is read once at mount time. File contents are read from
// the volume on first open and kept for the life of the mount. ADFS names are
// shown with '/' swapped for '.', as hostfile does.
package adfsfuse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/soypat/adfs"
	"github.com/soypat/adfs/internal/hostfile"
)

// volume serializes access to the FS, which FUSE calls concurrently.
type volume struct {
	mu   sync.Mutex
	fsys *adfs.FS
	log  *slog.Logger
}

// Root is the root directory node of a mount.
type Root struct {
	dirNode
}

type dirNode struct {
	fs.Inode
	vol *volume
	obj adfs.Object
}

type fileNode struct {
	fs.Inode
	vol  *volume
	obj  adfs.Object
	mu   sync.Mutex
	data []byte
}

var (
	_ = (fs.NodeOnAdder)((*Root)(nil))
	_ = (fs.NodeGetattrer)((*dirNode)(nil))
	_ = (fs.NodeGetattrer)((*fileNode)(nil))
	_ = (fs.NodeOpener)((*fileNode)(nil))
	_ = (fs.NodeReader)((*fileNode)(nil))
)

// NewRoot returns the root node for a read-only view of fsys. A nil log
// discards messages.
func NewRoot(fsys *adfs.FS, log *slog.Logger) *Root {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Root{}
	r.vol = &volume{fsys: fsys, log: log}
	r.obj, _ = fsys.Find("$")
	return r
}

// Mount serves fsys at dir. The caller waits on and unmounts the returned server.
func Mount(dir string, fsys *adfs.FS, log *slog.Logger) (*fuse.Server, error) {
	root := NewRoot(fsys, log)
	return fs.Mount(dir, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:  "adfs",
			Name:    "adfs",
			Options: []string{"ro"},
		},
	})
}

func (r *Root) OnAdd(ctx context.Context) {
	r.vol.addDir(ctx, &r.Inode, "$")
}

// addDir creates nodes for the entries of the ADFS directory at path and
// recurses into subdirectories.
func (vol *volume) addDir(ctx context.Context, parent *fs.Inode, path string) {
	vol.mu.Lock()
	objs, err := vol.fsys.ReadDir(path)
	vol.mu.Unlock()
	if err != nil {
		vol.log.Error("adfsfuse:readdir", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	for _, obj := range objs {
		var child *fs.Inode
		if obj.Attr.IsDir() {
			child = parent.NewPersistentInode(ctx, &dirNode{vol: vol, obj: obj}, fs.StableAttr{Mode: fuse.S_IFDIR})
			vol.addDir(ctx, child, path+"."+obj.Name)
		} else {
			child = parent.NewPersistentInode(ctx, &fileNode{vol: vol, obj: obj}, fs.StableAttr{Mode: fuse.S_IFREG})
		}
		parent.AddChild(hostfile.ADFSToHost(obj.Name), child, false)
	}
}

func (d *dirNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0o555
	return 0
}

func (n *fileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = permBits(n.obj.Attr)
	out.Nlink = 1
	out.Size = uint64(n.obj.Length)
	const bs = 256
	out.Blksize = bs
	out.Blocks = (out.Size + bs - 1) / bs
	if mt := n.obj.ModTime(); !mt.IsZero() {
		out.SetTimes(&mt, &mt, &mt)
	} else {
		epoch := time.Unix(0, 0)
		out.SetTimes(&epoch, &epoch, &epoch)
	}
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&uint32(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.data == nil {
		obj := n.obj
		n.vol.mu.Lock()
		err := n.vol.fsys.Load(&obj)
		n.vol.mu.Unlock()
		if err != nil {
			n.vol.log.Error("adfsfuse:load", slog.String("name", obj.Name), slog.String("err", err.Error()))
			return nil, 0, errno(err)
		}
		n.data = obj.Data
		if n.data == nil {
			n.data = []byte{}
		}
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if off >= int64(len(n.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := min(off+int64(len(dest)), int64(len(n.data)))
	return fuse.ReadResultData(n.data[off:end]), 0
}

// permBits maps ADFS access flags onto Unix permission bits. Owner flags
// map to the user bits and public flags to both group and other bits.
// Write bits are never set since the mount is read-only.
func permBits(attr adfs.Attr) uint32 {
	var mode uint32
	if attr&adfs.AttrOwnerRead != 0 {
		mode |= 0o400
	}
	if attr&adfs.AttrOwnerExec != 0 {
		mode |= 0o100
	}
	if attr&adfs.AttrPublicRead != 0 {
		mode |= 0o044
	}
	if attr&adfs.AttrPublicExec != 0 {
		mode |= 0o011
	}
	return mode
}

// errno maps driver errors onto the closest errno.
func errno(err error) syscall.Errno {
	switch {
	case errors.Is(err, adfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, adfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, adfs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	}
	return syscall.EIO
}
