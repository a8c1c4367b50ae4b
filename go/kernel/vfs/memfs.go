package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

// MaxFileSize bounds a MemFS file; writes reaching past it fail with ENOSPC.
const MaxFileSize int64 = 1 << 30

// MemFS is an in-memory tree of directories and regular files.
type MemFS struct {
	mu      sync.Mutex // protects the tree shape and nextIno
	root    *memNode
	nextIno uint32
}

type memNode struct {
	sync.RWMutex // protects data and children
	ino          uint32
	dir          bool
	data         []byte
	children     map[string]*memNode
}

func NewMemFS() *MemFS {
	fs := &MemFS{nextIno: 1}
	fs.root = fs.newNode(true)
	return fs
}

// caller holds fs.mu
func (fs *MemFS) newNode(dir bool) *memNode {
	n := &memNode{ino: fs.nextIno, dir: dir}
	fs.nextIno++
	if dir {
		n.children = make(map[string]*memNode)
	}
	return n
}

func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// caller holds fs.mu
func (fs *MemFS) walk(parts []string) (*memNode, error) {
	n := fs.root
	for _, name := range parts {
		if !n.dir {
			return nil, co.ENOTDIR
		}
		child, ok := n.children[name]
		if !ok {
			return nil, co.ENOENT
		}
		n = child
	}
	return n, nil
}

func (fs *MemFS) Open(p string, flags OpenFlag, mode uint32) (Vnode, error) {
	if p == "" {
		return nil, errors.Wrap(co.EINVAL, "open: empty path")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parts := splitPath(p)
	n, err := fs.walk(parts)
	switch {
	case err == co.ENOENT && flags&O_CREAT != 0:
		parent, err := fs.walk(parts[:len(parts)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "open %q", p)
		}
		if !parent.dir {
			return nil, errors.Wrapf(co.ENOTDIR, "open %q", p)
		}
		n = fs.newNode(false)
		parent.Lock()
		parent.children[parts[len(parts)-1]] = n
		parent.Unlock()
	case err != nil:
		return nil, errors.Wrapf(err, "open %q", p)
	case flags&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL:
		return nil, errors.Wrapf(co.EEXIST, "open %q", p)
	}

	if n.dir && flags.Writable() {
		return nil, errors.Wrapf(co.EISDIR, "open %q", p)
	}
	if flags&O_TRUNC != 0 && flags.Writable() {
		n.Lock()
		n.data = nil
		n.Unlock()
	}
	return &memVnode{node: n}, nil
}

// Mkdir creates a directory; its parent must exist.
func (fs *MemFS) Mkdir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parts := splitPath(p)
	if len(parts) == 0 {
		return errors.Wrapf(co.EEXIST, "mkdir %q", p)
	}
	parent, err := fs.walk(parts[:len(parts)-1])
	if err != nil {
		return errors.Wrapf(err, "mkdir %q", p)
	}
	if !parent.dir {
		return errors.Wrapf(co.ENOTDIR, "mkdir %q", p)
	}
	name := parts[len(parts)-1]
	if _, ok := parent.children[name]; ok {
		return errors.Wrapf(co.EEXIST, "mkdir %q", p)
	}
	child := fs.newNode(true)
	parent.Lock()
	parent.children[name] = child
	parent.Unlock()
	return nil
}

// WriteFile creates or replaces a regular file with data.
func (fs *MemFS) WriteFile(p string, data []byte) error {
	vn, err := fs.Open(p, O_WRONLY|O_CREAT|O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer vn.Close()
	_, err = vn.Write(data, 0)
	return err
}

type memVnode struct {
	node *memNode
}

func (v *memVnode) Read(p []byte, off int64) (int, error) {
	n := v.node
	if n.dir {
		return 0, co.EISDIR
	}
	if off < 0 {
		return 0, co.EINVAL
	}
	n.RLock()
	defer n.RUnlock()
	if off >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(p, n.data[off:]), nil
}

func (v *memVnode) Write(p []byte, off int64) (int, error) {
	n := v.node
	if n.dir {
		return 0, co.EISDIR
	}
	end := off + int64(len(p))
	if off < 0 || end < off || end > MaxFileSize {
		return 0, co.ENOSPC
	}
	n.Lock()
	defer n.Unlock()
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	return copy(n.data[off:], p), nil
}

func (v *memVnode) Stat() (*Stat, error) {
	n := v.node
	n.RLock()
	defer n.RUnlock()
	st := &Stat{
		Size:    int64(len(n.data)),
		Nlink:   1,
		Ino:     n.ino,
		Blksize: 512,
	}
	if n.dir {
		st.Mode = S_IFDIR | 0755
		st.Size = int64(len(n.children))
	} else {
		st.Mode = S_IFREG | 0644
	}
	st.Blocks = uint32((st.Size + 511) / 512)
	return st, nil
}

func (v *memVnode) names() []string {
	// children change under both the MemFS lock and the node lock
	n := v.node
	n.RLock()
	defer n.RUnlock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *memVnode) ReadDir(p []byte, off int64) (int, int64, error) {
	if !v.node.dir {
		return 0, off, co.ENOTDIR
	}
	names := v.names()
	if off < 0 || off >= int64(len(names)) {
		return 0, off, nil
	}
	return copy(p, names[off]), off + 1, nil
}

func (v *memVnode) TrySeek(off int64) error {
	return nil
}

func (v *memVnode) Close() error {
	return nil
}
