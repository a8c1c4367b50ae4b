package common

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

// Errno is an OS/161 error number. It implements error so kernel code can
// return it directly or wrapped.
type Errno int32

const (
	ENOSYS       Errno = 1
	ENOMEM       Errno = 3
	EFAULT       Errno = 6
	ENAMETOOLONG Errno = 7
	EINVAL       Errno = 8
	ENOTDIR      Errno = 17
	EISDIR       Errno = 18
	ENOENT       Errno = 19
	EEXIST       Errno = 22
	ENODEV       Errno = 25
	EMFILE       Errno = 28
	EBADF        Errno = 30
	EIO          Errno = 32
	ESPIPE       Errno = 33
	ENOSPC       Errno = 36
)

var errnoNames = map[Errno]string{
	ENOSYS:       "ENOSYS",
	ENOMEM:       "ENOMEM",
	EFAULT:       "EFAULT",
	ENAMETOOLONG: "ENAMETOOLONG",
	EINVAL:       "EINVAL",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	ENOENT:       "ENOENT",
	EEXIST:       "EEXIST",
	ENODEV:       "ENODEV",
	EMFILE:       "EMFILE",
	EBADF:        "EBADF",
	EIO:          "EIO",
	ESPIPE:       "ESPIPE",
	ENOSPC:       "ENOSPC",
}

var errnoDescriptions = map[Errno]string{
	ENOSYS:       "Function not implemented",
	ENOMEM:       "Out of memory",
	EFAULT:       "Bad memory reference",
	ENAMETOOLONG: "String too long",
	EINVAL:       "Invalid argument",
	ENOTDIR:      "Not a directory",
	EISDIR:       "Is a directory",
	ENOENT:       "No such file or directory",
	EEXIST:       "File or object exists",
	ENODEV:       "No such device",
	EMFILE:       "Too many open files",
	EBADF:        "Bad file number",
	EIO:          "Input/output error",
	ESPIPE:       "Illegal seek",
	ENOSPC:       "No space left on device",
}

func (e Errno) Error() string {
	return e.Description()
}

func (e Errno) String() string {
	name, ok := errnoNames[e]
	if ok {
		return name + " (" + e.Description() + ")"
	}
	return fmt.Sprintf("{Errno %d}", e)
}

// Description returns a short description about the error code.
func (e Errno) Description() string {
	desc, ok := errnoDescriptions[e]
	if ok {
		return desc
	}
	return fmt.Sprintf("{Errno %d}", int32(e))
}

// Name returns the symbolic name, e.g. "EBADF".
func (e Errno) Name() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("E%d", int32(e))
}

// ToErrno finds the errno carried by err. Memory faults map to EFAULT and
// ENAMETOOLONG, anything unknown to EIO.
func ToErrno(err error) Errno {
	if err == nil {
		return 0
	}
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case errors.Is(err, models.ErrStrTooLong):
		return ENAMETOOLONG
	case errors.Is(err, models.ErrFault):
		return EFAULT
	}
	return EIO
}

// Ret encodes a syscall result: n on success, -errno otherwise.
func Ret(n int64, err error) uint64 {
	if err != nil {
		return Fail(err)
	}
	return uint64(n)
}

// Fail encodes err as a negative return value, or 0 for nil.
func Fail(err error) uint64 {
	if err != nil {
		return uint64(int64(-ToErrno(err)))
	}
	return 0
}

// DecodeRet splits a raw syscall return value into result and errno.
func DecodeRet(ret uint64) (int64, Errno) {
	if v := int64(ret); v < 0 && v >= -0xffff {
		return -1, Errno(-v)
	}
	return int64(ret), 0
}
