package fsprog

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

const (
	PageSize = 4096
	// Fixed variable indices created by PrepareBuffers.
	SrcBuffer  Index = 0
	DestBuffer Index = 1
	// PathStart is the first index available for path variables after PrepareBuffers.
	PathStart Index = 2
)

var logger = zap.NewNop()

// SetLogger replaces the package logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Program is the IR aggregate. Variables live in an arena addressed by
// Index; every derived set holds indices into it.
//
// A Program is not safe for concurrent use. Workers exploring variants in
// parallel should each operate on their own Clone.
type Program struct {
	variables []Variable
	syscalls  []Syscall

	activeFDs     []Index
	activeFileFDs []Index
	activeDirFDs  []Index
	// bases of mmap'd memory
	activeMapBases []Index

	availFiles   []FileObject
	availDirs    []FileObject
	availNonDirs []FileObject
}

func New() *Program {
	return &Program{}
}

// PrepareBuffers allocates the two page-pair scratch buffers at SrcBuffer
// and DestBuffer. The program must be empty.
func (p *Program) PrepareBuffers() {
	if len(p.variables) != 0 {
		invariant("PrepareBuffers", "program already has %d variables", len(p.variables))
	}
	p.AllocVariable(ByteBuffer{Size: PageSize * 2})
	p.AllocVariable(ByteBuffer{Size: PageSize * 2})
}

// AllocText allocates a Text variable holding s.
func (p *Program) AllocText(s string) Index {
	return p.AllocVariable(Text(s))
}

// AllocVariable allocates a variable of kind KindNone and returns its index.
func (p *Program) AllocVariable(payload Payload) Index {
	return p.AllocTypedVariable(payload, KindNone)
}

// AllocTypedVariable allocates a variable with an explicit kind. Descriptor
// kinds are registered as active descriptors and KindMmap as a mapped base.
func (p *Program) AllocTypedVariable(payload Payload, kind Kind) Index {
	idx := Index(len(p.variables))
	p.variables = append(p.variables, Variable{
		Name:    fmt.Sprintf("v%d", idx),
		Payload: payload,
		Kind:    kind,
	})
	switch {
	case kind.IsDescriptor():
		p.RegisterDescriptor(idx)
	case kind == KindMmap:
		p.activeMapBases = append(p.activeMapBases, idx)
	}
	return idx
}

// RegisterDescriptor adds an existing variable to the active descriptor
// sets. Variables whose kind is not a descriptor kind land in activeFDs only.
func (p *Program) RegisterDescriptor(idx Index) {
	v := p.mustVariable("RegisterDescriptor", idx)
	if slices.Contains(p.activeFDs, idx) {
		return
	}
	p.activeFDs = append(p.activeFDs, idx)
	switch v.Kind {
	case KindDir:
		p.activeDirFDs = append(p.activeDirFDs, idx)
	case KindFile, KindSymlink, KindFifo:
		p.activeFileFDs = append(p.activeFileFDs, idx)
	case KindNone, KindMmap, KindUnknown:
	}
}

// ReleaseDescriptor drops idx from the active descriptor sets.
func (p *Program) ReleaseDescriptor(idx Index) {
	v := p.mustVariable("ReleaseDescriptor", idx)
	switch v.Kind {
	case KindDir:
		p.activeDirFDs = deleteIndex(p.activeDirFDs, idx)
	case KindFile, KindSymlink, KindFifo:
		p.activeFileFDs = deleteIndex(p.activeFileFDs, idx)
	case KindNone, KindMmap, KindUnknown:
		logger.Warn("release of non-descriptor variable",
			zap.Int64("index", int64(idx)), zap.Stringer("kind", v.Kind))
	}
	p.activeFDs = deleteIndex(p.activeFDs, idx)
}

// MarkBaseUnmapped removes idx from the mapped bases and demotes the
// variable to KindNone.
func (p *Program) MarkBaseUnmapped(idx Index) {
	pos := slices.Index(p.activeMapBases, idx)
	if pos < 0 {
		invariant("MarkBaseUnmapped", "index %d is not a mapped base", idx)
	}
	p.mustVariable("MarkBaseUnmapped", idx)
	p.activeMapBases = slices.Delete(p.activeMapBases, pos, pos+1)
	p.variables[idx].Kind = KindNone
}

// UndoLastVariable removes the most recently allocated variable along with
// its descriptor or mapped-base registration.
func (p *Program) UndoLastVariable() error {
	if len(p.variables) == 0 {
		logger.Warn("undo last variable", zap.Error(ErrNoVariables))
		return ErrNoVariables
	}
	idx := Index(len(p.variables) - 1)
	switch kind := p.variables[idx].Kind; {
	case kind.IsDescriptor():
		p.ReleaseDescriptor(idx)
	case kind == KindMmap:
		p.MarkBaseUnmapped(idx)
	}
	p.variables = p.variables[:idx]
	return nil
}

func (p *Program) RecordSyscall(s Syscall) {
	p.syscalls = append(p.syscalls, s.clone())
}

func (p *Program) UndoLastSyscall() error {
	if len(p.syscalls) == 0 {
		logger.Warn("undo last syscall", zap.Error(ErrNoSyscalls))
		return ErrNoSyscalls
	}
	p.syscalls = p.syscalls[:len(p.syscalls)-1]
	return nil
}

// UndoLastSyscallIfEqual removes the last syscall only when it equals s.
// It reports whether a syscall was removed and panics on an empty program.
func (p *Program) UndoLastSyscallIfEqual(s Syscall) bool {
	n := len(p.syscalls)
	if n == 0 {
		invariant("UndoLastSyscallIfEqual", "no syscalls recorded")
	}
	if !p.syscalls[n-1].Equal(s) {
		return false
	}
	p.syscalls = p.syscalls[:n-1]
	return true
}

// RemoveSyscallMatching drops every recorded syscall equal to s and returns
// how many were removed.
func (p *Program) RemoveSyscallMatching(s Syscall) int {
	n := len(p.syscalls)
	p.syscalls = slices.DeleteFunc(p.syscalls, s.Equal)
	return n - len(p.syscalls)
}

// TrackFile records f with its descriptor index set to idx.
func (p *Program) TrackFile(f FileObject, idx Index) {
	f = f.clone()
	f.DescriptorIndex = idx
	switch f.FType {
	case KindDir:
		p.availDirs = append(p.availDirs, f)
	case KindFile, KindFifo, KindSymlink:
		p.availNonDirs = append(p.availNonDirs, f)
	case KindNone, KindMmap, KindUnknown:
		logger.Warn("tracked file object with invalid type",
			zap.String("path", f.RelPath), zap.Stringer("ftype", f.FType))
	}
	p.availFiles = append(p.availFiles, f)
}

// UntrackLastFile pops the most recently tracked file object.
func (p *Program) UntrackLastFile() FileObject {
	const op = "UntrackLastFile"
	if len(p.availFiles) == 0 {
		invariant(op, "no tracked files")
	}
	f := p.availFiles[len(p.availFiles)-1]
	p.availFiles = p.availFiles[:len(p.availFiles)-1]
	switch f.FType {
	case KindDir:
		if len(p.availDirs) == 0 {
			invariant(op, "directory cache is empty")
		}
		p.availDirs = p.availDirs[:len(p.availDirs)-1]
	case KindFile, KindFifo, KindSymlink:
		if len(p.availNonDirs) == 0 {
			invariant(op, "non-directory cache is empty")
		}
		p.availNonDirs = p.availNonDirs[:len(p.availNonDirs)-1]
	case KindNone, KindMmap, KindUnknown:
		logger.Warn("untracked file object with invalid type",
			zap.String("path", f.RelPath), zap.Stringer("ftype", f.FType))
	}
	return f
}

// UntrackFile removes every tracked entry equal to f.
func (p *Program) UntrackFile(f FileObject) {
	p.availFiles = slices.DeleteFunc(p.availFiles, f.Equal)
	switch f.FType {
	case KindDir:
		p.UntrackDir(f)
	case KindFile, KindFifo, KindSymlink:
		p.UntrackNonDir(f)
	case KindNone, KindMmap, KindUnknown:
		logger.Warn("untrack of file object with invalid type",
			zap.String("path", f.RelPath), zap.Stringer("ftype", f.FType))
	}
}

func (p *Program) UntrackDir(f FileObject) {
	p.availDirs = slices.DeleteFunc(p.availDirs, f.Equal)
}

func (p *Program) UntrackNonDir(f FileObject) {
	p.availNonDirs = slices.DeleteFunc(p.availNonDirs, f.Equal)
}

func (p *Program) mustVariable(op string, idx Index) Variable {
	if idx < 0 || int(idx) >= len(p.variables) {
		invariant(op, "invalid variable index %d", idx)
	}
	return p.variables[idx]
}

func deleteIndex(s []Index, idx Index) []Index {
	return slices.DeleteFunc(s, func(x Index) bool { return x == idx })
}

// Clone returns a deep copy.
func (p *Program) Clone() *Program {
	c := &Program{
		variables:      make([]Variable, len(p.variables)),
		syscalls:       make([]Syscall, len(p.syscalls)),
		activeFDs:      slices.Clone(p.activeFDs),
		activeFileFDs:  slices.Clone(p.activeFileFDs),
		activeDirFDs:   slices.Clone(p.activeDirFDs),
		activeMapBases: slices.Clone(p.activeMapBases),
		availFiles:     cloneFiles(p.availFiles),
		availDirs:      cloneFiles(p.availDirs),
		availNonDirs:   cloneFiles(p.availNonDirs),
	}
	for i, v := range p.variables {
		c.variables[i] = v.clone()
	}
	for i, s := range p.syscalls {
		c.syscalls[i] = s.clone()
	}
	return c
}

func cloneFiles(fs []FileObject) []FileObject {
	if fs == nil {
		return nil
	}
	out := make([]FileObject, len(fs))
	for i, f := range fs {
		out[i] = f.clone()
	}
	return out
}

func (p *Program) NumVariables() int { return len(p.variables) }

// Variable returns a copy of variable idx.
func (p *Program) Variable(idx Index) (Variable, bool) {
	if idx < 0 || int(idx) >= len(p.variables) {
		return Variable{}, false
	}
	return p.variables[idx].clone(), true
}

func (p *Program) Syscalls() []Syscall {
	out := make([]Syscall, len(p.syscalls))
	for i, s := range p.syscalls {
		out[i] = s.clone()
	}
	return out
}

func (p *Program) ActiveFDs() []Index     { return slices.Clone(p.activeFDs) }
func (p *Program) ActiveFileFDs() []Index { return slices.Clone(p.activeFileFDs) }
func (p *Program) ActiveDirFDs() []Index  { return slices.Clone(p.activeDirFDs) }
func (p *Program) MappedBases() []Index   { return slices.Clone(p.activeMapBases) }
func (p *Program) Files() []FileObject    { return cloneFiles(p.availFiles) }
func (p *Program) Dirs() []FileObject     { return cloneFiles(p.availDirs) }
func (p *Program) NonDirs() []FileObject  { return cloneFiles(p.availNonDirs) }
