package main

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/lunixbochs/argjoy"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"

	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/file"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/os161"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

type Command struct {
	Name string
	Args string
	Desc string
	Run  interface{}
}

var Commands = make(map[string]*Command)

func cmd(c *Command) *Command {
	fn := reflect.ValueOf(c.Run)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("Command.Run must be a func: got (%T) %#v\n", c.Run, c.Run))
	}
	Commands[c.Name] = c
	return c
}

var aj = argjoy.NewArgjoy()

// Run parses and executes one shell line.
func Run(c *Context, line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		c.Printf("parse error: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	if mem, err := c.mem(); err == nil {
		defer mem.Reset()
	}
	name, args := args[0], args[1:]
	cmd, ok := Commands[name]
	if !ok {
		c.Printf("command not found.\n")
		return nil
	}
	out, err := aj.Call(cmd.Run, c, args)
	if err != nil {
		c.Printf("usage: %s %s\n", cmd.Name, cmd.Args)
		return nil
	}
	if len(out) > 0 {
		if err, ok := out[0].(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	return n, errors.Wrapf(err, "bad number %q", s)
}

var flagNames = map[string]vfs.OpenFlag{
	"r":      vfs.O_RDONLY,
	"rdonly": vfs.O_RDONLY,
	"w":      vfs.O_WRONLY,
	"wronly": vfs.O_WRONLY,
	"rw":     vfs.O_RDWR,
	"rdwr":   vfs.O_RDWR,
	"creat":  vfs.O_CREAT,
	"excl":   vfs.O_EXCL,
	"trunc":  vfs.O_TRUNC,
	"append": vfs.O_APPEND,
}

// parseFlags accepts a number or names joined by '|' or ',', e.g. "rw|creat".
func parseFlags(s string) (vfs.OpenFlag, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return vfs.OpenFlag(n), nil
	}
	var flags vfs.OpenFlag
	for _, name := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		flag, ok := flagNames[strings.TrimPrefix(name, "o_")]
		if !ok {
			return 0, errors.Errorf("unknown open flag %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

var whenceNames = map[string]int{
	"set": vfs.SEEK_SET,
	"cur": vfs.SEEK_CUR,
	"end": vfs.SEEK_END,
}

func (c *Context) putStr(s string) (uint64, error) {
	mem, err := c.mem()
	if err != nil {
		return 0, err
	}
	return mem.PutStr(s)
}

func (c *Context) alloc(size uint64) (uint64, error) {
	mem, err := c.mem()
	if err != nil {
		return 0, err
	}
	return mem.Alloc(size)
}

var OpenCmd = cmd(&Command{
	Name: "open",
	Args: "<path> [flags]",
	Desc: "Open a file and print its descriptor.",
	Run: func(c *Context, path string, rest ...string) error {
		flags := vfs.O_RDONLY
		if len(rest) > 0 {
			var err error
			if flags, err = parseFlags(rest[0]); err != nil {
				return err
			}
		}
		addr, err := c.putStr(path)
		if err != nil {
			return err
		}
		fd, err := c.call("open", addr, uint64(flags), 0666)
		if err != nil {
			return err
		}
		c.Printf("%d\n", fd)
		return nil
	},
})

var CloseCmd = cmd(&Command{
	Name: "close",
	Args: "<fd>",
	Desc: "Close a descriptor.",
	Run: func(c *Context, fdArg string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		_, err = c.call("close", uint64(fd))
		return err
	},
})

var ReadCmd = cmd(&Command{
	Name: "read",
	Args: "<fd> <size>",
	Desc: "Read from a descriptor.",
	Run: func(c *Context, fdArg, sizeArg string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		size, err := parseInt(sizeArg)
		if err != nil {
			return err
		}
		if size < 0 {
			return errors.Errorf("negative size %d", size)
		}
		addr, err := c.alloc(uint64(size))
		if err != nil {
			return err
		}
		n, err := c.call("read", uint64(fd), addr, uint64(size))
		if err != nil {
			return err
		}
		data, err := c.P.Mem.MemRead(addr, uint64(n))
		if err != nil {
			return err
		}
		c.Printf("%d %s\n", n, models.Repr(data, 0))
		return nil
	},
})

var WriteCmd = cmd(&Command{
	Name: "write",
	Args: "<fd> <text>",
	Desc: "Write text to a descriptor.",
	Run: func(c *Context, fdArg string, text ...string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		data := strings.Join(text, " ")
		addr, err := c.putStr(data)
		if err != nil {
			return err
		}
		n, err := c.call("write", uint64(fd), addr, uint64(len(data)))
		if err != nil {
			return err
		}
		c.Printf("%d\n", n)
		return nil
	},
})

var LseekCmd = cmd(&Command{
	Name: "lseek",
	Args: "<fd> <offset> [set|cur|end]",
	Desc: "Move a descriptor's offset.",
	Run: func(c *Context, fdArg, offArg string, rest ...string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		off, err := parseInt(offArg)
		if err != nil {
			return err
		}
		whence := vfs.SEEK_SET
		if len(rest) > 0 {
			w, ok := whenceNames[strings.ToLower(rest[0])]
			if !ok {
				return errors.Errorf("bad whence %q", rest[0])
			}
			whence = w
		}
		pos, err := c.call("lseek", uint64(fd), uint64(off), uint64(whence))
		if err != nil {
			return err
		}
		c.Printf("%d\n", pos)
		return nil
	},
})

var Dup2Cmd = cmd(&Command{
	Name: "dup2",
	Args: "<oldfd> <newfd>",
	Desc: "Duplicate a descriptor.",
	Run: func(c *Context, oldArg, newArg string) error {
		oldfd, err := parseInt(oldArg)
		if err != nil {
			return err
		}
		newfd, err := parseInt(newArg)
		if err != nil {
			return err
		}
		fd, err := c.call("dup2", uint64(oldfd), uint64(newfd))
		if err != nil {
			return err
		}
		c.Printf("%d\n", fd)
		return nil
	},
})

var FstatCmd = cmd(&Command{
	Name: "fstat",
	Args: "<fd>",
	Desc: "Show what a descriptor refers to.",
	Run: func(c *Context, fdArg string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		mem, err := c.mem()
		if err != nil {
			return err
		}
		var st os161.Stat
		size, err := mem.StrucAt(mem.Base).Sizeof(&st)
		if err != nil {
			return err
		}
		addr, err := mem.Alloc(uint64(size))
		if err != nil {
			return err
		}
		if _, err := c.call("fstat", uint64(fd), addr); err != nil {
			return err
		}
		if err := mem.StrucAt(addr).Unpack(&st); err != nil {
			return err
		}
		kind := "file"
		switch st.Mode & vfs.S_IFMT {
		case vfs.S_IFDIR:
			kind = "dir"
		case vfs.S_IFCHR:
			kind = "char"
		}
		c.Printf("%s size=%d mode=%#o ino=%d nlink=%d\n", kind, st.Size, st.Mode&0777, st.Ino, st.Nlink)
		return nil
	},
})

var LsCmd = cmd(&Command{
	Name: "ls",
	Args: "<fd>",
	Desc: "List the remaining entries of a directory descriptor.",
	Run: func(c *Context, fdArg string) error {
		fd, err := parseInt(fdArg)
		if err != nil {
			return err
		}
		const size = 256
		addr, err := c.alloc(size)
		if err != nil {
			return err
		}
		for {
			n, err := c.call("getdirentry", uint64(fd), addr, size)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			name, err := c.P.Mem.MemRead(addr, uint64(n))
			if err != nil {
				return err
			}
			c.Printf("%s\n", name)
		}
	},
})

var CdCmd = cmd(&Command{
	Name: "cd",
	Args: "<path>",
	Desc: "Change the working directory.",
	Run: func(c *Context, path string) error {
		addr, err := c.putStr(path)
		if err != nil {
			return err
		}
		_, err = c.call("chdir", addr)
		return err
	},
})

var PwdCmd = cmd(&Command{
	Name: "pwd",
	Desc: "Print the working directory.",
	Run: func(c *Context) error {
		const size = 1024
		addr, err := c.alloc(size)
		if err != nil {
			return err
		}
		n, err := c.call("__getcwd", addr, size)
		if err != nil {
			return err
		}
		cwd, err := c.P.Mem.MemRead(addr, uint64(n))
		if err != nil {
			return err
		}
		c.Printf("%s\n", cwd)
		return nil
	},
})

var FdsCmd = cmd(&Command{
	Name: "fds",
	Desc: "List open descriptors of the current process.",
	Run: func(c *Context) error {
		if c.P == nil {
			return errors.New("no current process")
		}
		for _, fd := range c.P.Files.Open() {
			f, err := c.P.Files.Lookup(fd)
			if err != nil {
				continue
			}
			c.Printf("%3d %v\n", fd, f)
		}
		return nil
	},
})

var ForkCmd = cmd(&Command{
	Name: "fork",
	Desc: "Fork the current process; the shell stays in the parent.",
	Run: func(c *Context) error {
		pid, err := c.call("fork")
		if err != nil {
			return err
		}
		c.Printf("%d\n", pid)
		return nil
	},
})

var PsCmd = cmd(&Command{
	Name: "ps",
	Desc: "List processes.",
	Run: func(c *Context) error {
		for _, pid := range c.K.Pids() {
			mark := " "
			if c.P != nil && c.P.Pid == pid {
				mark = "*"
			}
			c.Printf("%s %d\n", mark, pid)
		}
		return nil
	},
})

var SwitchCmd = cmd(&Command{
	Name: "switch",
	Args: "<pid>",
	Desc: "Make another process current.",
	Run: func(c *Context, pidArg string) error {
		pid, err := parseInt(pidArg)
		if err != nil {
			return err
		}
		p := c.K.Proc(int(pid))
		if p == nil {
			return errors.Errorf("no process %d", pid)
		}
		c.P = p
		return nil
	},
})

var ExitCmd = cmd(&Command{
	Name: "exit",
	Args: "[code]",
	Desc: "Exit the current process. The shell quits when none are left.",
	Run: func(c *Context, rest ...string) error {
		var code int64
		if len(rest) > 0 {
			var err error
			if code, err = parseInt(rest[0]); err != nil {
				return err
			}
		}
		if _, err := c.call("_exit", uint64(code)); err != nil {
			return err
		}
		if _, _, err := os161.ExitStatus(c.P); err != nil {
			c.Printf("close on exit: %v\n", err)
		}
		c.P = nil
		if pids := c.K.Pids(); len(pids) > 0 {
			c.P = c.K.Proc(pids[0])
		} else {
			c.quit = true
		}
		return nil
	},
})

var HelpCmd = cmd(&Command{
	Name: "help",
	Desc: "List commands.",
	Run: func(c *Context) error {
		names := make([]string, 0, len(Commands))
		for name := range Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmd := Commands[name]
			c.Printf("  %-28s %s\n", strings.TrimSpace(cmd.Name+" "+cmd.Args), cmd.Desc)
		}
		c.Printf("max descriptors per process: %d\n", file.MaxFD)
		return nil
	},
})
