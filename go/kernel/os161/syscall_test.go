package os161

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lunixbochs/ghostrace/ghost/sys/num"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/file"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

type testEnv struct {
	k   *Kernel
	p   *Process
	mem *models.FlatMemory
	fs  *vfs.MemFS
	out *bytes.Buffer
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWithInput(t, strings.NewReader("typed"))
}

func newEnvWithInput(t *testing.T, in io.Reader) *testEnv {
	fs := vfs.NewMemFS()
	fs.Mkdir("/dir")
	fs.WriteFile("/dir/ten", []byte("0123456789"))
	fs.WriteFile("/dir/two", []byte("ab"))
	out := &bytes.Buffer{}
	mux := vfs.NewMux(fs)
	mux.AddDevice("con", vfs.NewConsole(in, out))
	k := NewKernel(nil, mux)
	mem := models.NewFlatMemory(1 << 16)
	p, err := k.Spawn(mem)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{k: k, p: p, mem: mem, fs: fs, out: out}
}

func (e *testEnv) sys(t *testing.T, name string, args ...uint64) (int64, co.Errno) {
	t.Helper()
	ret, err := Call(e.p, name, args...)
	if err != nil {
		t.Fatal(err)
	}
	return co.DecodeRet(ret)
}

func (e *testEnv) str(t *testing.T, s string) uint64 {
	addr, err := e.mem.PutStr(s)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func (e *testEnv) open(t *testing.T, path string, flags vfs.OpenFlag) int64 {
	t.Helper()
	fd, errno := e.sys(t, "open", e.str(t, path), uint64(flags), 0644)
	if errno != 0 {
		t.Fatalf("open %q: %v", path, errno)
	}
	return fd
}

func (e *testEnv) read(t *testing.T, fd int64, size uint64) string {
	t.Helper()
	buf, _ := e.mem.Alloc(size)
	n, errno := e.sys(t, "read", uint64(fd), buf, size)
	if errno != 0 {
		t.Fatalf("read %d: %v", fd, errno)
	}
	data, _ := e.mem.MemRead(buf, uint64(n))
	return string(data)
}

func TestConsoleDescriptors(t *testing.T) {
	e := newEnv(t)
	msg := e.str(t, "hello")
	if n, errno := e.sys(t, "write", 1, msg, 5); n != 5 || errno != 0 {
		t.Fatalf("write: %d %v", n, errno)
	}
	e.sys(t, "write", 2, msg, 2)
	if e.out.String() != "hellohe" {
		t.Errorf("console got %q", e.out.String())
	}
	if got := e.read(t, 0, 16); got != "typed" {
		t.Errorf("stdin %q", got)
	}
	if _, errno := e.sys(t, "write", 0, msg, 5); errno != co.EBADF {
		t.Errorf("write to stdin: %v", errno)
	}
	if _, errno := e.sys(t, "lseek", 1, 10, vfs.SEEK_SET); errno != co.ESPIPE {
		t.Errorf("seek on console: %v", errno)
	}
}

func TestOpenErrors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		path  string
		flags vfs.OpenFlag
		want  co.Errno
	}{
		{"", vfs.O_RDONLY, co.EINVAL},
		{"/missing", vfs.O_RDONLY, co.ENOENT},
		{"/dir/ten/x", vfs.O_RDONLY, co.ENOTDIR},
		{"/dir/ten", vfs.O_RDWR | vfs.O_CREAT | vfs.O_EXCL, co.EEXIST},
		{"/dir", vfs.O_WRONLY, co.EISDIR},
		{"/dir/ten", vfs.O_ACCMODE, co.EINVAL},
		{"nodev:", vfs.O_RDONLY, co.ENODEV},
	}
	for _, test := range tests {
		if _, errno := e.sys(t, "open", e.str(t, test.path), uint64(test.flags), 0); errno != test.want {
			t.Errorf("open(%q, %v): got %v, want %v", test.path, test.flags, errno, test.want)
		}
	}
	if _, errno := e.sys(t, "open", 0, 0, 0); errno != co.EFAULT {
		t.Errorf("NULL path: %v", errno)
	}
	long := e.str(t, "/"+strings.Repeat("x", co.PathMax))
	if _, errno := e.sys(t, "open", long, 0, 0); errno != co.ENAMETOOLONG {
		t.Errorf("long path: %v", errno)
	}
}

func TestReadWriteSeek(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir/ten", vfs.O_RDWR)
	if fd != 3 {
		t.Fatalf("first open got fd %d", fd)
	}
	if got := e.read(t, fd, 4); got != "0123" {
		t.Fatalf("read %q", got)
	}
	if pos, _ := e.sys(t, "lseek", uint64(fd), uint64(0xfffffffffffffffb), vfs.SEEK_END); pos != 5 {
		t.Fatalf("SEEK_END -5: %d", pos)
	}
	if _, errno := e.sys(t, "lseek", uint64(fd), uint64(0xfffffffffffffff0), vfs.SEEK_CUR); errno != co.EINVAL {
		t.Fatalf("negative seek: %v", errno)
	}
	if _, errno := e.sys(t, "lseek", uint64(fd), 0, 9); errno != co.EINVAL {
		t.Fatalf("bad whence: %v", errno)
	}
	if got := e.read(t, fd, 100); got != "56789" {
		t.Fatalf("read after seek %q", got)
	}
	if n, _ := e.sys(t, "write", uint64(fd), e.str(t, "AB"), 2); n != 2 {
		t.Fatalf("write %d", n)
	}
	e.sys(t, "lseek", uint64(fd), 0, vfs.SEEK_SET)
	if got := e.read(t, fd, 100); got != "0123456789AB" {
		t.Fatalf("file now %q", got)
	}
	if got := e.read(t, fd, 100); got != "" {
		t.Fatalf("read at EOF %q", got)
	}
	if _, errno := e.sys(t, "read", uint64(fd), 0, 4); errno != co.EFAULT {
		t.Errorf("read into NULL: %v", errno)
	}
	if _, errno := e.sys(t, "read", 77, e.mem.Base, 4); errno != co.EBADF {
		t.Errorf("read from closed fd: %v", errno)
	}
}

func TestWriteBeyondMaxFileSize(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir/two", vfs.O_RDWR)
	if pos, errno := e.sys(t, "lseek", uint64(fd), 1<<62, vfs.SEEK_SET); pos != 1<<62 || errno != 0 {
		t.Fatalf("seek far past EOF: %d %v", pos, errno)
	}
	if _, errno := e.sys(t, "write", uint64(fd), e.str(t, "x"), 1); errno != co.ENOSPC {
		t.Fatalf("write at 1<<62: %v", errno)
	}
	if pos, _ := e.sys(t, "lseek", uint64(fd), 0, vfs.SEEK_CUR); pos != 1<<62 {
		t.Errorf("failed write moved offset to %d", pos)
	}
	e.sys(t, "lseek", uint64(fd), 0, vfs.SEEK_SET)
	if got := e.read(t, fd, 16); got != "ab" {
		t.Errorf("file now %q", got)
	}
}

func TestFaultKeepsOffset(t *testing.T) {
	e := newEnv(t)
	end := e.mem.Base + uint64(len(e.mem.Data))
	fd := e.open(t, "/dir/ten", vfs.O_RDONLY)
	if _, errno := e.sys(t, "read", uint64(fd), end-2, 4); errno != co.EFAULT {
		t.Fatalf("read straddling the end of memory: %v", errno)
	}
	if _, errno := e.sys(t, "read", uint64(fd), e.mem.Base, 1<<40); errno != co.EFAULT {
		t.Fatalf("oversized read: %v", errno)
	}
	if got := e.read(t, fd, 4); got != "0123" {
		t.Errorf("offset moved by faulting reads: %q", got)
	}

	dir := e.open(t, "/dir", vfs.O_RDONLY)
	if _, errno := e.sys(t, "getdirentry", uint64(dir), end-1, 64); errno != co.EFAULT {
		t.Fatalf("getdirentry into bad buffer: %v", errno)
	}
	buf, _ := e.mem.Alloc(64)
	n, _ := e.sys(t, "getdirentry", uint64(dir), buf, 64)
	if name, _ := e.mem.MemRead(buf, uint64(n)); string(name) != "ten" {
		t.Errorf("first entry after fault %q", name)
	}
}

func TestBlockedConsoleRead(t *testing.T) {
	in, typed := io.Pipe()
	e := newEnvWithInput(t, in)
	bufs := []uint64{}
	for i := 0; i < 2; i++ {
		buf, _ := e.mem.Alloc(8)
		bufs = append(bufs, buf)
	}
	msg := e.str(t, "hi")

	reads := make(chan int64, 2)
	for _, buf := range bufs {
		go func(buf uint64) {
			ret, _ := Call(e.p, "read", 0, buf, 8)
			n, _ := co.DecodeRet(ret)
			reads <- n
		}(buf)
	}
	// let both readers reach the console
	time.Sleep(50 * time.Millisecond)

	wrote := make(chan int64, 1)
	go func() {
		ret, _ := Call(e.p, "write", 1, msg, 2)
		n, _ := co.DecodeRet(ret)
		wrote <- n
	}()
	select {
	case n := <-wrote:
		if n != 2 {
			t.Errorf("write returned %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Error("write to stdout blocked behind pending stdin reads")
	}
	if e.out.String() != "hi" {
		t.Errorf("console got %q", e.out.String())
	}

	typed.Close()
	for i := 0; i < 2; i++ {
		if n := <-reads; n != 0 {
			t.Errorf("read at end of input returned %d", n)
		}
	}
}

func TestAppendAndCreate(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/new", vfs.O_WRONLY|vfs.O_CREAT|vfs.O_APPEND)
	e.sys(t, "write", uint64(fd), e.str(t, "one"), 3)
	e.sys(t, "lseek", uint64(fd), 0, vfs.SEEK_SET)
	e.sys(t, "write", uint64(fd), e.str(t, "two"), 3)
	r := e.open(t, "/new", vfs.O_RDONLY)
	if got := e.read(t, r, 16); got != "onetwo" {
		t.Errorf("got %q", got)
	}
	t2 := e.open(t, "/new", vfs.O_WRONLY|vfs.O_TRUNC)
	e.sys(t, "close", uint64(t2))
	e.sys(t, "lseek", uint64(r), 0, vfs.SEEK_SET)
	if got := e.read(t, r, 16); got != "" {
		t.Errorf("after O_TRUNC got %q", got)
	}
}

func TestCloseDup2(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir/ten", vfs.O_RDONLY)
	if n, errno := e.sys(t, "dup2", uint64(fd), uint64(fd)); n != fd || errno != 0 {
		t.Fatalf("dup2 to self: %d %v", n, errno)
	}
	if n, _ := e.sys(t, "dup2", uint64(fd), 1); n != 1 {
		t.Fatalf("dup2 over stdout: %d", n)
	}
	e.read(t, fd, 3)
	if got := e.read(t, 1, 3); got != "345" {
		t.Errorf("dup'd fd read %q", got)
	}
	if refs, _ := e.p.Files.Refs(int(fd)); refs != 2 {
		t.Errorf("refs %d", refs)
	}
	if _, errno := e.sys(t, "dup2", uint64(fd), file.MaxFD); errno != co.EBADF {
		t.Errorf("dup2 out of range: %v", errno)
	}
	if _, errno := e.sys(t, "dup2", 99, 4); errno != co.EBADF {
		t.Errorf("dup2 from closed: %v", errno)
	}
	if n, errno := e.sys(t, "dup2", 99, 99); n != 99 || errno != 0 {
		t.Errorf("dup2 of a closed fd onto itself: %d %v", n, errno)
	}
	if _, errno := e.sys(t, "close", uint64(fd)); errno != 0 {
		t.Fatal(errno)
	}
	if _, errno := e.sys(t, "close", uint64(fd)); errno != co.EBADF {
		t.Errorf("double close: %v", errno)
	}
	if got := e.read(t, 1, 3); got != "678" {
		t.Errorf("survivor read %q", got)
	}
	if _, errno := e.sys(t, "close", uint64(0xffffffffffffffff)); errno != co.EBADF {
		t.Errorf("close(-1): %v", errno)
	}
}

func TestTooManyFiles(t *testing.T) {
	e := newEnv(t)
	for i := 3; i < file.MaxFD; i++ {
		e.open(t, "/dir/two", vfs.O_RDONLY)
	}
	e.mem.Reset()
	if _, errno := e.sys(t, "open", e.str(t, "/dir/two"), 0, 0); errno != co.EMFILE {
		t.Fatalf("got %v, want EMFILE", errno)
	}
	e.sys(t, "close", 9)
	if fd := e.open(t, "/dir/two", vfs.O_RDONLY); fd != 9 {
		t.Errorf("got fd %d, want 9", fd)
	}
}

func TestFstat(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir/ten", vfs.O_RDONLY)
	var st Stat
	size, _ := e.mem.StrucAt(e.mem.Base).Sizeof(&st)
	buf, _ := e.mem.Alloc(uint64(size))
	if _, errno := e.sys(t, "fstat", uint64(fd), buf); errno != 0 {
		t.Fatal(errno)
	}
	if err := e.mem.StrucAt(buf).Unpack(&st); err != nil {
		t.Fatal(err)
	}
	if st.Size != 10 || st.Mode&vfs.S_IFMT != vfs.S_IFREG {
		t.Errorf("stat %+v", st)
	}
	if _, errno := e.sys(t, "fstat", 50, buf); errno != co.EBADF {
		t.Errorf("fstat closed fd: %v", errno)
	}
	if _, errno := e.sys(t, "fstat", uint64(fd), 8); errno != co.EFAULT {
		t.Errorf("fstat to bad pointer: %v", errno)
	}
}

func TestGetdirentry(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir", vfs.O_RDONLY)
	buf, _ := e.mem.Alloc(64)
	var names []string
	for {
		n, errno := e.sys(t, "getdirentry", uint64(fd), buf, 64)
		if errno != 0 {
			t.Fatal(errno)
		}
		if n == 0 {
			break
		}
		name, _ := e.mem.MemRead(buf, uint64(n))
		names = append(names, string(name))
	}
	if strings.Join(names, ",") != "ten,two" {
		t.Errorf("entries %v", names)
	}
	reg := e.open(t, "/dir/ten", vfs.O_RDONLY)
	if _, errno := e.sys(t, "getdirentry", uint64(reg), buf, 64); errno != co.ENOTDIR {
		t.Errorf("getdirentry on file: %v", errno)
	}
}

func TestCwd(t *testing.T) {
	e := newEnv(t)
	if _, errno := e.sys(t, "chdir", e.str(t, "dir")); errno != 0 {
		t.Fatal(errno)
	}
	if _, errno := e.sys(t, "chdir", e.str(t, "ten")); errno != co.ENOTDIR {
		t.Errorf("chdir to file: %v", errno)
	}
	buf, _ := e.mem.Alloc(64)
	n, _ := e.sys(t, "__getcwd", buf, 64)
	cwd, _ := e.mem.MemRead(buf, uint64(n))
	if string(cwd) != "/dir" {
		t.Errorf("cwd %q", cwd)
	}
	fd := e.open(t, "two", vfs.O_RDONLY)
	if got := e.read(t, fd, 8); got != "ab" {
		t.Errorf("relative open read %q", got)
	}
	if n, _ := e.sys(t, "__getcwd", buf, 2); n != 2 {
		t.Errorf("truncated getcwd %d", n)
	}
}

func TestForkExit(t *testing.T) {
	e := newEnv(t)
	fd := e.open(t, "/dir/ten", vfs.O_RDONLY)
	pid, errno := e.sys(t, "fork")
	if errno != 0 {
		t.Fatal(errno)
	}
	child := e.k.Proc(int(pid))
	if child == nil || child == e.p {
		t.Fatalf("no child %d", pid)
	}
	if n, _ := e.sys(t, "getpid"); n != int64(e.p.Pid) {
		t.Errorf("getpid %d", n)
	}
	e.read(t, fd, 4)
	cf, _ := child.Files.Lookup(int(fd))
	if cf.Offset() != 4 || cf.Refs() != 2 {
		t.Errorf("child file: offset %d refs %d", cf.Offset(), cf.Refs())
	}

	if _, err := Call(child, "_exit", 3); err != nil {
		t.Fatal(err)
	}
	exited, code, err := ExitStatus(child)
	if !exited || code != 3 || err != nil {
		t.Errorf("exit status %v %d %v", exited, code, err)
	}
	if e.k.Proc(child.Pid) != nil {
		t.Error("exited child still listed")
	}
	if pf, _ := e.p.Files.Lookup(int(fd)); pf.Refs() != 1 {
		t.Errorf("parent refs %d after child exit", pf.Refs())
	}

	e.sys(t, "_exit", 0)
	e.sys(t, "_exit", 1)
	if _, code, _ := ExitStatus(e.p); code != 0 {
		t.Errorf("second exit changed code to %d", code)
	}
	if _, errno := e.sys(t, "read", uint64(fd), e.mem.Base, 1); errno != co.EBADF {
		t.Errorf("read after exit: %v", errno)
	}
	if _, errno := e.sys(t, "fork"); errno != co.EBADF {
		t.Errorf("fork after exit: %v", errno)
	}
	if len(e.k.Pids()) != 0 {
		t.Errorf("processes left: %v", e.k.Pids())
	}
}

func TestTrap(t *testing.T) {
	e := newEnv(t)
	numbers := make(map[string]int)
	for n, name := range num.Linux_x86 {
		numbers[name] = n
	}
	msg := e.str(t, "trap")
	ret, err := Trap(e.p, numbers["write"], []uint64{1, msg, 4})
	if err != nil || ret != 4 || e.out.String() != "trap" {
		t.Fatalf("write trap: %d %v %q", ret, err, e.out.String())
	}
	ret, err = Trap(e.p, numbers["getpid"], nil)
	if err != nil || int(ret) != e.p.Pid {
		t.Fatalf("getpid trap: %d %v", ret, err)
	}
	if _, err := Trap(e.p, 100000, nil); err == nil {
		t.Error("unknown number accepted")
	}
	if _, err := Call(e.p, "close"); err == nil {
		t.Error("missing arguments accepted")
	}
}
