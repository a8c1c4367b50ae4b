package vfs

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

// Console is a character device backed by a reader and a writer. Every open
// gets its own vnode; closing a vnode never closes the device.
type Console struct {
	in  io.Reader
	out io.Writer

	rmu, wmu sync.Mutex
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// Open implements Device.
func (c *Console) Open(flags OpenFlag) (Vnode, error) {
	return &consoleVnode{con: c}, nil
}

type consoleVnode struct {
	con *Console
}

func (v *consoleVnode) Read(p []byte, off int64) (int, error) {
	c := v.con
	if c.in == nil {
		return 0, nil
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()
	n, err := c.in.Read(p)
	if err == io.EOF {
		err = nil
	}
	return n, errors.Wrap(err, "console read")
}

func (v *consoleVnode) Write(p []byte, off int64) (int, error) {
	c := v.con
	if c.out == nil {
		return len(p), nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.out.Write(p)
	return n, errors.Wrap(err, "console write")
}

func (v *consoleVnode) Stat() (*Stat, error) {
	return &Stat{Mode: S_IFCHR | 0666, Nlink: 1, Blksize: 1}, nil
}

func (v *consoleVnode) ReadDir(p []byte, off int64) (int, int64, error) {
	return 0, off, co.ENOTDIR
}

func (v *consoleVnode) TrySeek(off int64) error {
	if off != 0 {
		return co.ESPIPE
	}
	return nil
}

func (v *consoleVnode) Close() error {
	return nil
}
