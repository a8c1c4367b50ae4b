// fdsh is an interactive shell that drives the file syscalls of a process
// running against an in-memory or host-backed filesystem.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"go.uber.org/zap"

	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/os161"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
	"github.com/InitialD/CSCC69-OS161-Project3/go/models"
)

type nullCloser struct{ io.Writer }

func (n *nullCloser) Close() error { return nil }

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func PrintError(w io.Writer, err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(w, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			method := fmt.Sprintf("%n", f)
			fmt.Fprintf(w, "  %s:%d | %s()\n", f, f, method)
			if method == "main" {
				break
			}
		}
	}
}

func newFileSystem(config *models.Config, in io.Reader, out io.Writer) (*vfs.Mux, error) {
	var root vfs.FileSystem
	if config.HostRoot != "" {
		host, err := vfs.NewHostFS(config.HostRoot)
		if err != nil {
			return nil, err
		}
		root = host
	} else {
		mem := vfs.NewMemFS()
		if err := mem.Mkdir("/tmp"); err != nil {
			return nil, err
		}
		if err := mem.WriteFile("/README", []byte("fdsh scratch filesystem\n")); err != nil {
			return nil, err
		}
		root = mem
	}
	mux := vfs.NewMux(root)
	mux.AddDevice("con", vfs.NewConsole(in, out))
	return mux, nil
}

func historyPath() string {
	configDirs := configdir.New("os161", "fdsh")
	cacheDir := configDirs.QueryCacheFolder()
	if err := cacheDir.MkdirAll(); err != nil {
		return ""
	}
	return filepath.Join(cacheDir.Path, "history")
}

func main() {
	fs := flag.NewFlagSet("fdsh", flag.ExitOnError)
	strace := fs.Bool("strace", false, "trace syscalls")
	strsize := fs.Int("strsize", 30, "limited -strace'd strings to length (0 disables)")
	verbose := fs.Bool("v", false, "verbose output")
	root := fs.String("root", "", "serve / from this host directory instead of memory")
	memsize := fs.Uint64("mem", 1<<20, "process address space size in bytes")
	nocolor := fs.Bool("nocolor", false, "disable colored output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [command; command...]\n", os.Args[0])
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	config := models.NewConfig()
	config.TraceSys = *strace
	config.Strsize = *strsize
	config.Verbose = *verbose
	config.HostRoot = *root
	config.MemSize = *memsize
	config.Color = !*nocolor && isatty.IsTerminal(os.Stderr.Fd())
	config.Output = &nullCloser{colorable.NewColorableStderr()}
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			PrintError(os.Stderr, err)
			os.Exit(1)
		}
		defer logger.Sync()
		config.Logger = logger
	}

	// the console device writes to stdout; the shell itself reads lines
	// through readline, so guest reads from fd 0 see no input
	mux, err := newFileSystem(config, nil, os.Stdout)
	if err != nil {
		PrintError(os.Stderr, err)
		os.Exit(1)
	}
	k := os161.NewKernel(config, mux)
	p, err := k.Spawn(models.NewFlatMemory(config.MemSize))
	if err != nil {
		PrintError(os.Stderr, err)
		os.Exit(1)
	}
	c := &Context{Writer: os.Stdout, K: k, P: p}
	defer k.Shutdown()

	// commands given on the command line run without a prompt
	if args := fs.Args(); len(args) > 0 {
		for _, line := range strings.Split(strings.Join(args, " "), ";") {
			if err := Run(c, line); err != nil {
				PrintError(os.Stderr, err)
			}
			if c.quit {
				break
			}
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt(c),
		InterruptPrompt: "\n",
		HistoryFile:     historyPath(),
	})
	if err != nil {
		PrintError(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()
	// keep trace output from clobbering the prompt
	config.Output = &nullCloser{rl.Stderr()}
	c.Writer = rl.Stdout()
	for !c.quit {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err != nil {
			break
		}
		if err := Run(c, line); err != nil {
			PrintError(rl.Stderr(), err)
		}
		rl.SetPrompt(prompt(c))
	}
}

func prompt(c *Context) string {
	if c.P == nil {
		return "> "
	}
	return fmt.Sprintf("[%d]> ", c.P.Pid)
}
