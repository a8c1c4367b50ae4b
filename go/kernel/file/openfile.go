// Package file implements the kernel's open-file objects and the
// per-process descriptor table that maps small integers onto them.
package file

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
)

// OpenFile is the state behind one successful open: the vnode, the access
// mode and the seek position. It is shared by every descriptor created from
// it through dup2 or fork.
type OpenFile struct {
	vnode vfs.Vnode
	flags vfs.OpenFlag

	// mu serializes transfers and protects offset. It is held across vnode
	// calls that may block, so nothing reached under the table lock takes it.
	mu     sync.Mutex
	offset int64

	refMu sync.Mutex // protects refs; taken after mu when both are held
	refs  int        // 0 once destroyed
}

// Ref is one counted reference to an OpenFile. Each Acquire hands out a new
// Ref and each Ref is released exactly once.
type Ref struct {
	f        *OpenFile
	released int32
}

// New wraps vn in an OpenFile and returns the creator's reference.
func New(vn vfs.Vnode, flags vfs.OpenFlag) *Ref {
	f := &OpenFile{vnode: vn, flags: flags, refs: 1}
	return &Ref{f: f}
}

func (r *Ref) File() *OpenFile {
	return r.f
}

func (r *Ref) mustLive() {
	if atomic.LoadInt32(&r.released) != 0 {
		panic("file: use of released reference")
	}
}

// Acquire takes another reference to the same OpenFile.
func (r *Ref) Acquire() *Ref {
	r.mustLive()
	r.f.acquire()
	return &Ref{f: r.f}
}

// Release drops this reference. The last release closes the vnode and
// returns its error.
func (r *Ref) Release() error {
	if !atomic.CompareAndSwapInt32(&r.released, 0, 1) {
		panic("file: reference released twice")
	}
	return r.f.release()
}

func (f *OpenFile) acquire() {
	f.refMu.Lock()
	defer f.refMu.Unlock()
	if f.refs <= 0 {
		panic("file: acquire on destroyed open file")
	}
	f.refs++
}

func (f *OpenFile) release() error {
	f.refMu.Lock()
	if f.refs <= 0 {
		f.refMu.Unlock()
		panic("file: release on destroyed open file")
	}
	f.refs--
	last := f.refs == 0
	f.refMu.Unlock()
	if !last {
		return nil
	}
	return errors.Wrap(f.vnode.Close(), "vnode close")
}

// live reports whether the file still has references. Callers hold mu.
func (f *OpenFile) live() bool {
	f.refMu.Lock()
	defer f.refMu.Unlock()
	return f.refs > 0
}

func (f *OpenFile) Flags() vfs.OpenFlag {
	return f.flags
}

// Refs reports the current reference count.
func (f *OpenFile) Refs() int {
	f.refMu.Lock()
	defer f.refMu.Unlock()
	return f.refs
}

func (f *OpenFile) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Read transfers from the current offset into p and advances the offset by
// the amount read. The lock is held across the vnode call, so transfers on
// one OpenFile never overlap.
func (f *OpenFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.flags.Readable() || !f.live() {
		return 0, co.EBADF
	}
	n, err := f.vnode.Read(p, f.offset)
	if err != nil {
		return 0, err
	}
	f.offset += int64(n)
	return n, nil
}

// Write transfers p to the current offset, or to the end of the file when
// opened with O_APPEND.
func (f *OpenFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.flags.Writable() || !f.live() {
		return 0, co.EBADF
	}
	off := f.offset
	if f.flags&vfs.O_APPEND != 0 {
		st, err := f.vnode.Stat()
		if err != nil {
			return 0, err
		}
		off = st.Size
	}
	n, err := f.vnode.Write(p, off)
	if err != nil {
		return 0, err
	}
	f.offset = off + int64(n)
	return n, nil
}

// Seek moves the offset and returns the new position.
func (f *OpenFile) Seek(off int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live() {
		return 0, co.EBADF
	}
	var pos int64
	switch whence {
	case vfs.SEEK_SET:
		pos = off
	case vfs.SEEK_CUR:
		pos = f.offset + off
	case vfs.SEEK_END:
		st, err := f.vnode.Stat()
		if err != nil {
			return 0, err
		}
		pos = st.Size + off
	default:
		return 0, errors.Wrapf(co.EINVAL, "whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.Wrapf(co.EINVAL, "seek to %d", pos)
	}
	if err := f.vnode.TrySeek(pos); err != nil {
		return 0, err
	}
	f.offset = pos
	return pos, nil
}

func (f *OpenFile) Stat() (*vfs.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live() {
		return nil, co.EBADF
	}
	return f.vnode.Stat()
}

// ReadDir copies the directory entry at the current offset into p. The
// offset counts entries, not bytes. A return of 0 means no more entries.
func (f *OpenFile) ReadDir(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live() {
		return 0, co.EBADF
	}
	n, next, err := f.vnode.ReadDir(p, f.offset)
	if err != nil {
		return 0, err
	}
	f.offset = next
	return n, nil
}

func (f *OpenFile) String() string {
	return fmt.Sprintf("OpenFile{%s off=%d refs=%d}", f.flags, f.Offset(), f.Refs())
}
