package vfs

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

// Device is a named object reachable as "name:".
type Device interface {
	Open(flags OpenFlag) (Vnode, error)
}

// Mux routes "dev:" paths to devices and everything else to Root.
type Mux struct {
	Root FileSystem

	mu      sync.RWMutex
	devices map[string]Device
}

func NewMux(root FileSystem) *Mux {
	return &Mux{Root: root, devices: make(map[string]Device)}
}

func (m *Mux) AddDevice(name string, dev Device) {
	m.mu.Lock()
	m.devices[name] = dev
	m.mu.Unlock()
}

// SplitDevice returns the device name of path, if it has one. A device
// prefix ends at the first ':' and may not contain '/'.
func SplitDevice(path string) (dev, rest string, ok bool) {
	i := strings.IndexByte(path, ':')
	if i <= 0 || strings.IndexByte(path[:i], '/') >= 0 {
		return "", path, false
	}
	return path[:i], path[i+1:], true
}

func (m *Mux) Open(path string, flags OpenFlag, mode uint32) (Vnode, error) {
	if name, _, ok := SplitDevice(path); ok {
		m.mu.RLock()
		dev, found := m.devices[name]
		m.mu.RUnlock()
		if !found {
			return nil, errors.Wrapf(co.ENODEV, "open %q", path)
		}
		return dev.Open(flags)
	}
	if m.Root == nil {
		return nil, errors.Wrapf(co.ENOENT, "open %q: no root filesystem", path)
	}
	return m.Root.Open(path, flags, mode)
}
