// Package os161 provides processes and the file syscalls they make.
package os161

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/file"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

// Kernel owns the filesystem namespace and the live processes.
type Kernel struct {
	Config *models.Config
	FS     vfs.FileSystem

	mu      sync.Mutex
	nextPid int
	procs   map[int]*Process
}

func NewKernel(config *models.Config, fs vfs.FileSystem) *Kernel {
	if config == nil {
		config = models.NewConfig()
	}
	return &Kernel{
		Config:  config,
		FS:      fs,
		nextPid: 1,
		procs:   make(map[int]*Process),
	}
}

func (k *Kernel) log() *zap.Logger {
	return k.Config.Log()
}

// caller holds k.mu
func (k *Kernel) allocPid() int {
	pid := k.nextPid
	k.nextPid++
	return pid
}

// Spawn creates a process running in mem with the standard descriptors
// open on the console.
func (k *Kernel) Spawn(mem models.Memory) (*Process, error) {
	files := file.NewTable()
	if err := files.Init(k.FS); err != nil {
		return nil, errors.Wrap(err, "file table init")
	}
	k.mu.Lock()
	p := newProcess(k, k.allocPid(), mem, files, "/")
	k.procs[p.Pid] = p
	k.mu.Unlock()
	k.log().Info("spawn", zap.Int("pid", p.Pid))
	return p, nil
}

// Proc returns the live process with the given pid, or nil.
func (k *Kernel) Proc(pid int) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procs[pid]
}

// Pids lists live processes in ascending order.
func (k *Kernel) Pids() []int {
	k.mu.Lock()
	pids := make([]int, 0, len(k.procs))
	for pid := range k.procs {
		pids = append(pids, pid)
	}
	k.mu.Unlock()
	sort.Ints(pids)
	return pids
}

func (k *Kernel) reap(p *Process) {
	k.mu.Lock()
	delete(k.procs, p.Pid)
	k.mu.Unlock()
}

// Shutdown exits every live process.
func (k *Kernel) Shutdown() {
	for _, pid := range k.Pids() {
		if p := k.Proc(pid); p != nil {
			p.exit(0)
		}
	}
}
