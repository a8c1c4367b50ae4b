package common

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"

	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

type KernelBase struct {
	Syscalls map[string]Syscall
	Mem      models.Memory
	Config   *models.Config
	Argjoy   argjoy.Argjoy
	Pack     func(b Buf, i interface{}) error
}

func (k *KernelBase) Base() *KernelBase {
	return k
}

type Kernel interface {
	Base() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

// methods promoted from KernelBase are plumbing, not syscalls
var baseMethods = func() map[string]bool {
	ret := make(map[string]bool)
	typ := reflect.TypeOf(&KernelBase{})
	for i := 0; i < typ.NumMethod(); i++ {
		ret[typ.Method(i).Name] = true
	}
	return ret
}()

// InitSyscalls builds the syscall table from the exported methods of kf.
// A method named LiteralFoo registers as "foo", which allows syscall names
// that are not valid Go identifiers once snake-cased (e.g. "__getcwd").
func (k *KernelBase) InitSyscalls(kf Kernel) {
	k.Syscalls = make(map[string]Syscall)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if baseMethods[name] {
			continue
		}
		if strings.HasPrefix(name, "Literal") {
			name = strings.Replace(name, "Literal", "", 1)
		} else if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			// skip private or broken unicode methods
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Syscalls[name] = Syscall{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

func (k *KernelBase) Syscall(name string) *Syscall {
	if sys, ok := k.Syscalls[name]; ok {
		return &sys
	}
	return nil
}
