package common

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

var (
	traceName = ansi.ColorCode("default+b")
	traceErr  = ansi.ColorCode("red+b")
)

func (s Syscall) color() bool {
	return s.Kernel.Config != nil && s.Kernel.Config.Color
}

func (s Syscall) strsize() int {
	if s.Kernel.Config == nil {
		return 0
	}
	return s.Kernel.Config.Strsize
}

func (s Syscall) traceArg(args ...interface{}) string {
	hex := func(a interface{}) string {
		tmp := fmt.Sprintf("0x%x", a)
		if strings.HasPrefix(tmp, "0x-") {
			tmp = "-0x" + tmp[3:]
		}
		return tmp
	}

	switch arg := args[0].(type) {
	case Obuf:
		return hex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				mem, err := s.Kernel.Mem.MemRead(arg.Addr, uint64(length))
				if err != nil {
					return hex(arg.Addr)
				}
				return models.Repr(mem, s.strsize())
			}
		}
		// a lone Buf is a pathname
		if str, err := s.Kernel.Mem.ReadStrAt(arg.Addr, PathMax); err == nil {
			return models.Repr([]byte(str), s.strsize())
		}
		return hex(arg.Addr)
	case Off:
		return fmt.Sprintf("%d", int64(arg))
	case Ptr:
		return hex(arg)
	case Fd:
		return fmt.Sprintf("%d", int32(arg))
	case uint64:
		return hex(arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func (s Syscall) traceArgs(regs []uint64) string {
	inRef, err := s.Kernel.Argjoy.Convert(s.In, false, regs[:len(s.In)])
	if err != nil {
		return err.Error()
	}
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	ret := make([]string, len(in))
	for i := range in {
		ret[i] = s.traceArg(in[i:]...)
	}
	return strings.Join(ret, ", ")
}

func (s Syscall) Trace(regs []uint64) string {
	name := s.Name
	if s.color() {
		name = traceName + name + ansi.Reset
	}
	return fmt.Sprintf("%s(%s)", name, s.traceArgs(regs))
}

func (s Syscall) TraceRet(args []uint64, ret uint64) string {
	if n, errno := DecodeRet(ret); errno != 0 && len(s.Out) > 0 {
		msg := fmt.Sprintf("%d %s", n, errno)
		if s.color() {
			msg = traceErr + msg + ansi.Reset
		}
		return fmt.Sprintf(" = %s\n", msg)
	}
	var out []string
	for i, typ := range s.In {
		if typ == reflect.TypeOf(Obuf{}) && len(args) > i+1 {
			length := int64(ret)
			if length <= int64(args[i+1]) && length > 0 {
				mem, _ := s.Kernel.Mem.MemRead(args[i], uint64(length))
				out = append(out, models.Repr(mem, s.strsize()))
			}
		}
	}
	if len(s.Out) > 0 {
		out = append(out, fmt.Sprintf("%d", int64(ret)))
	}
	if len(out) > 0 {
		return fmt.Sprintf(" = %s\n", strings.Join(out, ", "))
	} else {
		return "\n"
	}
}
