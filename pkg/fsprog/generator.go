package fsprog

import (
	"fmt"

	"go.uber.org/zap"
)

// Linux open(2) flags and modes used by generated calls.
const (
	oRDONLY    = 0
	oRDWR      = 02
	oCREAT     = 0100
	oDIRECTORY = 0200000
	seekSet    = 0
	fileMode   = 0o644
	dirMode    = 0o755
)

type action int

const (
	actCreateFile action = iota
	actMkdir
	actWrite
	actRead
	actPwrite
	actPread
	actLseek
	actFsync
	actFtruncate
	actFstat
	actSetxattr
	actGetdents
	actSendfile
	actAccess
	actRelease
	numActions
)

var actionNames = [numActions]string{
	"create_file", "mkdir", "write", "read", "pwrite", "pread", "lseek",
	"fsync", "ftruncate", "fstat", "setxattr", "getdents", "sendfile", "access",
	"release",
}

// genSnapshot captures the collection sizes a single step may grow, so the
// step can be backed out through the undo operations.
type genSnapshot struct {
	vars     int
	syscalls int
	files    int
	lastFile *FileObject
}

type generator struct {
	opts     Options
	r        *rng
	p        *Program
	nextPath int
	nextAttr int
	// syscalls recorded by the current step, most recent last
	recorded []Syscall
	// descriptor retired by the current step, or NoIndex
	released Index
}

func newGenerator(opts Options) *generator {
	return &generator{opts: opts, r: newRNG(opts.Seed), p: New(), released: NoIndex}
}

// Generate grows a program through the mutation API. The same options
// always produce the same program.
func Generate(opts Options) (*Program, error) {
	opts = opts.normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	g := newGenerator(opts)
	g.run()
	return g.p, nil
}

func (g *generator) run() {
	g.p.PrepareBuffers()
	g.p.RecordSyscall(g.mkdirCall(g.p.AllocText(g.opts.Root)))

	maxSteps := g.opts.MaxSyscalls * 8
	for step := 0; step < maxSteps && len(g.p.syscalls) < g.opts.MaxSyscalls; step++ {
		act := action(g.r.upto(uint32(numActions)))
		snap := g.takeSnapshot()
		g.beginStep()
		if !g.apply(act) {
			continue
		}
		if g.r.flipcoin(uint32(g.opts.BacktrackProb)) {
			logger.Debug("backtrack", zap.String("action", actionNames[act]), zap.Int("step", step))
			g.restoreSnapshot(snap)
			continue
		}
		logger.Debug("step", zap.String("action", actionNames[act]), zap.Int("step", step),
			zap.Int("syscalls", len(g.p.syscalls)))
	}
}

func (g *generator) takeSnapshot() genSnapshot {
	s := genSnapshot{
		vars:     len(g.p.variables),
		syscalls: len(g.p.syscalls),
		files:    len(g.p.availFiles),
	}
	if n := len(g.p.availFiles); n > 0 {
		f := g.p.availFiles[n-1].clone()
		s.lastFile = &f
	}
	return s
}

func (g *generator) beginStep() {
	g.recorded = g.recorded[:0]
	g.released = NoIndex
}

func (g *generator) restoreSnapshot(s genSnapshot) {
	for i := len(g.recorded) - 1; i >= 0; i-- {
		g.p.UndoLastSyscallIfEqual(g.recorded[i])
	}
	for len(g.p.syscalls) > s.syscalls {
		_ = g.p.UndoLastSyscall()
	}
	for len(g.p.availFiles) > s.files {
		g.p.UntrackLastFile()
	}
	if s.lastFile != nil && !g.p.availFiles[len(g.p.availFiles)-1].Equal(*s.lastFile) {
		g.p.UntrackLastFile()
		g.p.TrackFile(*s.lastFile, s.lastFile.DescriptorIndex)
	}
	if g.released != NoIndex {
		g.p.RegisterDescriptor(g.released)
		g.released = NoIndex
	}
	for len(g.p.variables) > s.vars {
		_ = g.p.UndoLastVariable()
	}
}

func (g *generator) record(s Syscall) {
	g.p.RecordSyscall(s)
	g.recorded = append(g.recorded, s)
}

func (g *generator) newPath(prefix string) string {
	g.nextPath++
	return fmt.Sprintf("%s/%s%d", g.opts.Root, prefix, g.nextPath)
}

func (g *generator) mkdirCall(pathIdx Index) Syscall {
	s := NewSyscall(SysMkdir)
	s.Args = []Arg{Ref(pathIdx), Lit(dirMode)}
	return s
}

func (g *generator) pick(set []Index) (Index, bool) {
	if len(set) == 0 {
		return NoIndex, false
	}
	return set[g.r.upto(uint32(len(set)))], true
}

func (g *generator) length() int64 {
	return int64(g.r.upto(2*PageSize) + 1)
}

// apply performs one step and reports whether it changed the program.
func (g *generator) apply(act action) bool {
	switch act {
	case actCreateFile:
		if len(g.p.availFiles) >= g.opts.MaxFiles {
			return false
		}
		path := g.newPath("f")
		pathIdx := g.p.AllocText(path)
		fd := g.p.AllocTypedVariable(Text(path), KindFile)
		s := NewSyscallWithRet(SysOpen, fd)
		s.Args = []Arg{Ref(pathIdx), Lit(oRDWR | oCREAT), Lit(fileMode)}
		g.record(s)
		g.p.TrackFile(NewFileObject(path, KindFile, NoIndex), fd)
	case actMkdir:
		// mkdir and open are recorded together
		if len(g.p.availFiles) >= g.opts.MaxFiles || len(g.p.syscalls)+2 > g.opts.MaxSyscalls {
			return false
		}
		path := g.newPath("d")
		pathIdx := g.p.AllocText(path)
		g.record(g.mkdirCall(pathIdx))
		fd := g.p.AllocTypedVariable(Text(path), KindDir)
		s := NewSyscallWithRet(SysOpen, fd)
		s.Args = []Arg{Ref(pathIdx), Lit(oRDONLY | oDIRECTORY)}
		g.record(s)
		g.p.TrackFile(NewFileObject(path, KindDir, NoIndex), fd)
	case actWrite, actRead:
		fd, ok := g.pick(g.p.activeFileFDs)
		if !ok {
			return false
		}
		nr, buf := SysWrite, SrcBuffer
		if act == actRead {
			nr, buf = SysRead, DestBuffer
		}
		s := NewSyscall(nr)
		s.Args = []Arg{Ref(fd), Ref(buf), Lit(g.length())}
		g.record(s)
	case actPwrite, actPread:
		fd, ok := g.pick(g.p.activeFileFDs)
		if !ok {
			return false
		}
		nr, buf := SysPwrite, SrcBuffer
		if act == actPread {
			nr, buf = SysPread, DestBuffer
		}
		s := NewSyscall(nr)
		s.Args = []Arg{Ref(fd), Ref(buf), Lit(g.length()), Lit(int64(g.r.upto(4 * PageSize)))}
		g.record(s)
	case actLseek:
		fd, ok := g.pick(g.p.activeFileFDs)
		if !ok {
			return false
		}
		s := NewSyscall(SysLseek)
		s.Args = []Arg{Ref(fd), Lit(int64(g.r.upto(4 * PageSize))), Lit(seekSet)}
		g.record(s)
	case actFsync:
		fd, ok := g.pick(g.p.activeFDs)
		if !ok {
			return false
		}
		nr := SysFsync
		if g.r.flipcoin(50) {
			nr = SysFdatasync
		}
		s := NewSyscall(nr)
		s.Args = []Arg{Ref(fd)}
		g.record(s)
	case actFtruncate:
		fd, ok := g.pick(g.p.activeFileFDs)
		if !ok {
			return false
		}
		s := NewSyscall(SysFtruncate)
		s.Args = []Arg{Ref(fd), Lit(g.length())}
		g.record(s)
	case actFstat:
		fd, ok := g.pick(g.p.activeFDs)
		if !ok {
			return false
		}
		s := NewSyscall(SysFstat)
		s.Args = []Arg{Ref(fd), Ref(DestBuffer)}
		g.record(s)
	case actSetxattr:
		if len(g.p.availFiles) == 0 {
			return false
		}
		f := g.p.UntrackLastFile()
		g.nextAttr++
		x := Xattr{Name: fmt.Sprintf("user.k%d", g.nextAttr), Value: fmt.Sprintf("val%d", g.nextAttr)}
		pathIdx := g.p.AllocText(f.RelPath)
		nameIdx := g.p.AllocText(x.Name)
		valIdx := g.p.AllocText(x.Value)
		s := NewSyscall(SysSetxattr)
		s.Args = []Arg{Ref(pathIdx), Ref(nameIdx), Ref(valIdx), Lit(int64(len(x.Value))), Lit(x.Flags)}
		g.record(s)
		f.Xattrs = append(f.Xattrs, x)
		g.p.TrackFile(f, f.DescriptorIndex)
	case actGetdents:
		fd, ok := g.pick(g.p.activeDirFDs)
		if !ok {
			return false
		}
		s := NewSyscall(SysGetdents)
		s.Args = []Arg{Ref(fd), Ref(DestBuffer), Lit(2 * PageSize)}
		g.record(s)
	case actSendfile:
		if len(g.p.activeFileFDs) < 2 {
			return false
		}
		out, _ := g.pick(g.p.activeFileFDs)
		in, _ := g.pick(g.p.activeFileFDs)
		s := NewSyscall(SysSendfile)
		s.Args = []Arg{Ref(out), Ref(in), Lit(0), Lit(g.length())}
		g.record(s)
	case actAccess:
		if len(g.p.availFiles) == 0 {
			return false
		}
		f := g.p.availFiles[g.r.upto(uint32(len(g.p.availFiles)))]
		s := NewSyscall(SysAccess)
		s.Args = []Arg{Ref(g.p.AllocText(f.RelPath)), Lit(0)}
		g.record(s)
	case actRelease:
		// the retired descriptor stays tracked as a file but no later
		// call targets it, and the epilogue no longer closes it
		fd, ok := g.pick(g.p.activeFDs)
		if !ok {
			return false
		}
		g.p.ReleaseDescriptor(fd)
		g.released = fd
	default:
		return false
	}
	return true
}
