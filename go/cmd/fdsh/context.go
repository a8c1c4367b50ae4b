package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/os161"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

// Context is the state a shell command runs against.
type Context struct {
	io.Writer
	K *os161.Kernel
	P *os161.Process

	quit bool
}

func (c *Context) Printf(format string, a ...interface{}) (n int, err error) {
	return fmt.Fprintf(c, format, a...)
}

func (c *Context) mem() (*models.FlatMemory, error) {
	if c.P == nil {
		return nil, errors.New("no current process")
	}
	mem, ok := c.P.Mem.(*models.FlatMemory)
	if !ok {
		return nil, errors.Errorf("process %d: unsupported memory %T", c.P.Pid, c.P.Mem)
	}
	return mem, nil
}

// call runs a syscall in the current process. Scratch memory handed out
// by the command is reclaimed afterwards.
func (c *Context) call(name string, args ...uint64) (int64, error) {
	if c.P == nil {
		return -1, errors.New("no current process")
	}
	ret, err := os161.Call(c.P, name, args...)
	if err != nil {
		return -1, err
	}
	n, errno := co.DecodeRet(ret)
	if errno != 0 {
		return n, errors.Wrap(errno, name)
	}
	return n, nil
}
