//go:build !linux

package vfs

import (
	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

func NewHostFS(root string) (*HostFS, error) {
	return nil, errors.Wrap(co.ENOSYS, "host filesystem is only supported on linux")
}

func (h *HostFS) Open(p string, flags OpenFlag, mode uint32) (Vnode, error) {
	return nil, errors.Wrapf(co.ENOSYS, "open %q", p)
}
