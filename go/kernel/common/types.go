package common

import (
	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

// PathMax bounds pathnames copied in from user memory.
const PathMax = 1024

type (
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	Obuf struct{ Buf }
	Len  uint64
	Off  int64
	Fd   int32
	Ptr  uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.Base(), Addr: addr}
}

func (b Buf) Struc() *models.StrucStream {
	return b.K.Mem.StrucAt(b.Addr)
}

func (b Buf) Pack(i interface{}) error {
	if b.K.Pack != nil {
		if err := b.K.Pack(b, i); err == nil {
			return nil
		} else if err != argjoy.NoMatch {
			return err
		}
	}
	return errors.Wrap(b.Struc().Pack(i), "struc.Pack() failed")
}

func (b Buf) Unpack(i interface{}) error {
	return errors.Wrap(b.Struc().Unpack(i), "struc.Unpack() failed")
}

// Read copies size bytes in from user memory.
func (b Buf) Read(size Len) ([]byte, error) {
	return b.K.Mem.MemRead(b.Addr, uint64(size))
}

// Check reports whether size bytes at b are addressable by touching only
// the first and last byte. The address space is contiguous.
func (b Buf) Check(size Len) error {
	if size == 0 {
		return nil
	}
	last := b.Addr + uint64(size) - 1
	if last < b.Addr {
		return errors.Wrapf(models.ErrFault, "access 0x%x+%d", b.Addr, size)
	}
	if _, err := b.K.Mem.MemRead(b.Addr, 1); err != nil {
		return err
	}
	_, err := b.K.Mem.MemRead(last, 1)
	return err
}

// Write copies p out to user memory.
func (b Buf) Write(p []byte) error {
	return b.K.Mem.MemWrite(b.Addr, p)
}

// Str copies in a NUL-terminated string of at most max bytes.
func (b Buf) Str(max int) (string, error) {
	if b.Addr == 0 {
		return "", errors.Wrap(models.ErrFault, "NULL string")
	}
	return b.K.Mem.ReadStrAt(b.Addr, max)
}
