package models

import (
	"io"
	"os"

	"go.uber.org/zap"
)

type Config struct {
	Color    bool
	TraceSys bool
	Verbose  bool
	Strsize  int

	// MemSize is the size of each process address space in bytes.
	MemSize uint64
	// HostRoot, when set, serves the root filesystem from this host directory.
	HostRoot string

	Output io.WriteCloser
	Logger *zap.Logger
}

func NewConfig() *Config {
	return &Config{
		Strsize: 30,
		MemSize: 1 << 20,
		Output:  os.Stderr,
		Logger:  zap.NewNop(),
	}
}

// Log returns the configured logger or a no-op logger.
func (c *Config) Log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
