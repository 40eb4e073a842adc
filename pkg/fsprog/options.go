package fsprog

import (
	"fmt"
	"path"
	"strings"
)

// Options configures Generate.
type Options struct {
	Seed uint64

	// Root is the directory every generated path lives under.
	Root string

	MaxSyscalls int
	MaxFiles    int
	// BacktrackProb is the chance, in percent, that a step is undone right after it is taken.
	BacktrackProb int
}

func Defaults() Options {
	return Options{
		Root:          "/tmp/fsprog",
		MaxSyscalls:   32,
		MaxFiles:      8,
		BacktrackProb: 10,
	}
}

func (o Options) Validate() error {
	if o.MaxSyscalls < 1 {
		return fmt.Errorf("max-syscalls must be at least 1")
	}
	if o.MaxFiles < 1 {
		return fmt.Errorf("max-files must be at least 1")
	}
	if o.BacktrackProb < 0 || o.BacktrackProb > 100 {
		return fmt.Errorf("backtrack-prob value must between [0,100]")
	}
	if !path.IsAbs(o.Root) {
		return fmt.Errorf("root %q must be an absolute path", o.Root)
	}
	if strings.IndexByte(o.Root, 0) >= 0 {
		return fmt.Errorf("root must not contain NUL bytes")
	}
	return nil
}

func (o Options) normalize() Options {
	o.Root = path.Clean(o.Root)
	return o
}
