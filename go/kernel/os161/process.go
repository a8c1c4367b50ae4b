package os161

import (
	"path"
	"sync"

	"go.uber.org/zap"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/file"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

// Process is one address space plus its descriptor table. Every exported
// method is a syscall; see the common package for how they are registered.
type Process struct {
	co.KernelBase

	Pid    int
	Files  *file.Table
	Kernel *Kernel

	mu       sync.Mutex // protects cwd and the exit status
	cwd      string
	exited   bool
	exitCode int
	exitErr  error

	exitOnce sync.Once
}

func newProcess(k *Kernel, pid int, mem models.Memory, files *file.Table, cwd string) *Process {
	p := &Process{Pid: pid, Files: files, Kernel: k, cwd: cwd}
	p.Mem = mem
	p.Config = k.Config
	p.InitSyscalls(p)
	return p
}

func (p *Process) log() *zap.Logger {
	return p.Config.Log().With(zap.Int("pid", p.Pid))
}

// resolve makes name absolute against the working directory. Device paths
// are left alone.
func (p *Process) resolve(name string) string {
	if _, _, ok := vfs.SplitDevice(name); ok || path.IsAbs(name) {
		return name
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return path.Join(p.cwd, name)
}

func (p *Process) exit(code int) error {
	p.exitOnce.Do(func() {
		err := p.Files.Destroy()
		p.mu.Lock()
		p.exited = true
		p.exitCode = code
		p.exitErr = err
		p.mu.Unlock()
		p.Kernel.reap(p)
		if err != nil {
			p.log().Warn("exit", zap.Int("code", code), zap.Error(err))
		} else {
			p.log().Info("exit", zap.Int("code", code))
		}
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// ExitStatus reports whether p has exited, the code it passed to _exit and
// any error from closing its files.
func ExitStatus(p *Process) (exited bool, code int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitCode, p.exitErr
}

func (p *Process) fork() (*Process, error) {
	files, err := p.Files.Fork()
	if err != nil {
		return nil, err
	}
	mem := p.Mem
	if flat, ok := mem.(*models.FlatMemory); ok {
		mem = flat.Clone()
	}
	p.mu.Lock()
	cwd := p.cwd
	p.mu.Unlock()

	k := p.Kernel
	k.mu.Lock()
	child := newProcess(k, k.allocPid(), mem, files, cwd)
	k.procs[child.Pid] = child
	k.mu.Unlock()
	p.log().Info("fork", zap.Int("child", child.Pid))
	return child, nil
}
