package os161

import (
	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
)

// Fork replicates the process. The child shares every open file with the
// parent and starts with a copy of its memory and working directory.
func (p *Process) Fork() uint64 {
	child, err := p.fork()
	if err != nil {
		return co.Fail(err)
	}
	return uint64(child.Pid)
}

func (p *Process) Literal_exit(code int) {
	p.exit(code)
}

func (p *Process) Getpid() int {
	return p.Pid
}

func (p *Process) chdir(name string) error {
	if name == "" {
		return errors.Wrap(co.EINVAL, "chdir: empty path")
	}
	dir := p.resolve(name)
	vn, err := p.Kernel.FS.Open(dir, vfs.O_RDONLY, 0)
	if err != nil {
		return err
	}
	st, err := vn.Stat()
	if cerr := vn.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return errors.Wrapf(co.ENOTDIR, "chdir %q", name)
	}
	p.mu.Lock()
	p.cwd = dir
	p.mu.Unlock()
	return nil
}

func (p *Process) Chdir(path co.Buf) uint64 {
	name, err := path.Str(co.PathMax)
	if err != nil {
		return co.Fail(err)
	}
	return co.Fail(p.chdir(name))
}

// Literal__getcwd copies the working directory out without a terminator and
// returns its length, truncated to size.
func (p *Process) Literal__getcwd(buf co.Obuf, size co.Len) uint64 {
	p.mu.Lock()
	cwd := p.cwd
	p.mu.Unlock()
	out := []byte(cwd)
	if uint64(len(out)) > uint64(size) {
		out = out[:size]
	}
	if err := buf.Write(out); err != nil {
		return co.Fail(err)
	}
	return uint64(len(out))
}
