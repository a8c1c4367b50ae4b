package models

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrFault is returned for accesses outside of the address space.
	ErrFault = errors.New("bad memory reference")
	// ErrStrTooLong is returned when a string has no terminator within the limit.
	ErrStrTooLong = errors.New("string too long")
)

// Memory is the copyin/copyout boundary between the kernel and a process
// address space.
type Memory interface {
	ByteOrder() binary.ByteOrder
	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error
	ReadStrAt(addr uint64, max int) (string, error)
	StrucAt(addr uint64) *StrucStream
}

// FlatMemory is a single contiguous address space starting at Base. Address
// zero is never mapped, so NULL pointers fault.
type FlatMemory struct {
	sync.RWMutex
	Base  uint64
	Data  []byte
	Order binary.ByteOrder

	brk uint64
}

const DefaultBase = 0x400000

func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{
		Base:  DefaultBase,
		Data:  make([]byte, size),
		Order: binary.BigEndian,
		brk:   DefaultBase,
	}
}

func (m *FlatMemory) ByteOrder() binary.ByteOrder {
	return m.Order
}

func (m *FlatMemory) check(addr, size uint64) (uint64, error) {
	if addr < m.Base || addr+size < addr || addr+size > m.Base+uint64(len(m.Data)) {
		return 0, errors.Wrapf(ErrFault, "access 0x%x+%d", addr, size)
	}
	return addr - m.Base, nil
}

func (m *FlatMemory) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *FlatMemory) MemReadInto(p []byte, addr uint64) error {
	m.RLock()
	defer m.RUnlock()
	off, err := m.check(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, m.Data[off:])
	return nil
}

func (m *FlatMemory) MemWrite(addr uint64, p []byte) error {
	m.Lock()
	defer m.Unlock()
	off, err := m.check(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(m.Data[off:], p)
	return nil
}

// ReadStrAt reads a NUL-terminated string of at most max bytes, excluding
// the terminator.
func (m *FlatMemory) ReadStrAt(addr uint64, max int) (string, error) {
	m.RLock()
	defer m.RUnlock()
	off, err := m.check(addr, 1)
	if err != nil {
		return "", err
	}
	rest := m.Data[off:]
	if len(rest) > max+1 {
		rest = rest[:max+1]
	}
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		if len(rest) > max {
			return "", ErrStrTooLong
		}
		return "", errors.Wrapf(ErrFault, "unterminated string at 0x%x", addr)
	}
	return string(rest[:i]), nil
}

func (m *FlatMemory) StrucAt(addr uint64) *StrucStream {
	return &StrucStream{
		Stream: &MemIO{Mem: m, Addr: addr},
		Order:  m.Order,
	}
}

// Alloc reserves size bytes from the bottom of the address space. There is
// no free; Reset rewinds the allocator.
func (m *FlatMemory) Alloc(size uint64) (uint64, error) {
	m.Lock()
	defer m.Unlock()
	addr := m.brk
	if _, err := m.check(addr, size); err != nil {
		return 0, errors.Wrap(err, "alloc")
	}
	// keep allocations word aligned
	m.brk += (size + 7) &^ 7
	return addr, nil
}

func (m *FlatMemory) Reset() {
	m.Lock()
	m.brk = m.Base
	m.Unlock()
}

// PutStr copies s plus a NUL terminator into freshly allocated memory.
func (m *FlatMemory) PutStr(s string) (uint64, error) {
	addr, err := m.Alloc(uint64(len(s) + 1))
	if err != nil {
		return 0, err
	}
	return addr, m.MemWrite(addr, append([]byte(s), 0))
}

// Clone copies the address space, allocator state included.
func (m *FlatMemory) Clone() *FlatMemory {
	m.RLock()
	defer m.RUnlock()
	data := make([]byte, len(m.Data))
	copy(data, m.Data)
	return &FlatMemory{Base: m.Base, Data: data, Order: m.Order, brk: m.brk}
}
