package os161

import (
	"github.com/lunixbochs/ghostrace/ghost/sys/num"
	"github.com/pkg/errors"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

// names from the i386 table that map onto a differently named syscall here
var trapAliases = map[string]string{
	"exit":       "_exit",
	"exit_group": "_exit",
	"getcwd":     "__getcwd",
	"getdents":   "getdirentry",
	"getdents64": "getdirentry",
}

// Call invokes the named syscall with raw register arguments.
func Call(p *Process, name string, args ...uint64) (uint64, error) {
	sys := p.Syscall(name)
	if sys == nil {
		return co.Fail(co.ENOSYS), errors.Errorf("unknown syscall %q", name)
	}
	if len(args) < len(sys.In) {
		return co.Fail(co.EINVAL), errors.Errorf("%s: want %d arguments, got %d", name, len(sys.In), len(args))
	}
	return sys.Call(args), nil
}

// Trap dispatches a syscall by its i386 Linux number.
func Trap(p *Process, n int, args []uint64) (uint64, error) {
	name, ok := num.Linux_x86[n]
	if !ok {
		return co.Fail(co.ENOSYS), errors.Errorf("unknown syscall number %d", n)
	}
	if alias, ok := trapAliases[name]; ok {
		name = alias
	}
	return Call(p, name, args...)
}
