package file

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
)

// MaxFD is the number of descriptor slots per process.
const MaxFD = 128

// Console is the device path the standard descriptors are opened on.
const Console = "con:"

// Table maps descriptor numbers to open files. Each occupied slot owns one
// reference. Lock order is table before file; the table lock is never taken
// while an OpenFile lock is held.
type Table struct {
	mu        sync.Mutex
	slots     [MaxFD]*Ref
	destroyed bool
}

func NewTable() *Table {
	return &Table{}
}

// Init opens the console as descriptors 0, 1 and 2. On failure everything
// opened so far is closed again.
func (t *Table) Init(fs vfs.FileSystem) error {
	modes := []vfs.OpenFlag{vfs.O_RDONLY, vfs.O_WRONLY, vfs.O_WRONLY}
	for i, mode := range modes {
		vn, err := fs.Open(Console, mode, 0)
		if err != nil {
			err = errors.Wrapf(err, "open %s for fd %d", Console, i)
			if derr := t.Destroy(); derr != nil {
				err = multierror.Append(err, derr)
			}
			return err
		}
		ref := New(vn, mode)
		_, err = t.Insert(ref)
		if rerr := ref.Release(); err == nil {
			err = rerr
		}
		if err != nil {
			if derr := t.Destroy(); derr != nil {
				err = multierror.Append(err, derr)
			}
			return err
		}
	}
	return nil
}

func inRange(fd int) bool {
	return fd >= 0 && fd < MaxFD
}

// Insert stores a new reference to ref's file in the lowest empty slot.
func (t *Table) Insert(ref *Ref) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return -1, co.EBADF
	}
	for fd, slot := range t.slots {
		if slot == nil {
			t.slots[fd] = ref.Acquire()
			return fd, nil
		}
	}
	return -1, co.EMFILE
}

// caller holds t.mu
func (t *Table) slot(fd int) (*Ref, error) {
	if !inRange(fd) || t.slots[fd] == nil {
		return nil, co.EBADF
	}
	return t.slots[fd], nil
}

// Lookup returns the file behind fd without taking a reference. The result
// is only safe to use while the caller knows fd stays open; use Get
// otherwise.
func (t *Table) Lookup(fd int) (*OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.slot(fd)
	if err != nil {
		return nil, err
	}
	return ref.File(), nil
}

// Get returns a fresh reference to the file behind fd. The caller must
// release it.
func (t *Table) Get(fd int) (*Ref, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.slot(fd)
	if err != nil {
		return nil, err
	}
	return ref.Acquire(), nil
}

// Remove closes fd.
func (t *Table) Remove(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.slot(fd)
	if err != nil {
		return err
	}
	t.slots[fd] = nil
	return ref.Release()
}

// Dup2 makes newfd refer to the same open file as oldfd, closing whatever
// newfd held before. Equal descriptors in range are a no-op, whether or not
// the slot is open.
func (t *Table) Dup2(oldfd, newfd int) (int, error) {
	if !inRange(oldfd) || !inRange(newfd) {
		return -1, co.EBADF
	}
	if oldfd == newfd {
		return newfd, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.slot(oldfd)
	if err != nil {
		return -1, err
	}
	// a failed close of the old occupant still leaves newfd installed
	var cerr error
	if old := t.slots[newfd]; old != nil {
		t.slots[newfd] = nil
		cerr = old.Release()
	}
	t.slots[newfd] = ref.Acquire()
	return newfd, cerr
}

// Destroy closes every open descriptor. Only the first call does anything.
func (t *Table) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil
	}
	t.destroyed = true
	var result *multierror.Error
	for fd, ref := range t.slots {
		if ref == nil {
			continue
		}
		t.slots[fd] = nil
		if err := ref.Release(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close fd %d", fd))
		}
	}
	return result.ErrorOrNil()
}

// Fork returns a copy of the table whose descriptors share this table's
// open files.
func (t *Table) Fork() (*Table, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil, co.EBADF
	}
	child := NewTable()
	for fd, ref := range t.slots {
		if ref != nil {
			child.slots[fd] = ref.Acquire()
		}
	}
	return child, nil
}

// Refs reports the reference count of the file behind fd.
func (t *Table) Refs(fd int) (int, error) {
	f, err := t.Lookup(fd)
	if err != nil {
		return 0, err
	}
	return f.Refs(), nil
}

// Open lists the occupied descriptors in ascending order.
func (t *Table) Open() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fds []int
	for fd, ref := range t.slots {
		if ref != nil {
			fds = append(fds, fd)
		}
	}
	return fds
}
