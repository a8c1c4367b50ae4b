package vfs

import (
	"path/filepath"
	"strings"
)

// HostFS serves a host directory as the root filesystem.
type HostFS struct {
	Root string
}

func (h *HostFS) hostPath(p string) string {
	clean := filepath.Clean("/" + strings.TrimLeft(p, "/"))
	return filepath.Join(h.Root, clean)
}
