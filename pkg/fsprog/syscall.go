package fsprog

import (
	"fmt"
	"slices"
)

// SysNo identifies one of the supported filesystem syscalls.
type SysNo uint8

const (
	SysOpen SysNo = iota
	SysRead
	SysWrite
	SysLseek
	SysGetdents
	SysPread
	SysPwrite
	SysFstat
	SysStat
	SysLstat
	SysRename
	SysFsync
	SysFdatasync
	SysSyncfs
	SysSendfile
	SysAccess
	SysFtruncate
	SysTruncate
	SysMkdir
	SysRmdir
	SysLink
	SysUnlink
	SysSymlink
	SysSetxattr
	SysGetxattr
	SysRemovexattr
	SysListxattr

	numSysNo
)

type sysEntry struct {
	name  string // persisted form
	cname string
}

var sysTable = [numSysNo]sysEntry{
	SysOpen:        {"open", "SYS_open"},
	SysRead:        {"read", "SYS_read"},
	SysWrite:       {"write", "SYS_write"},
	SysLseek:       {"lseek", "SYS_lseek"},
	SysGetdents:    {"getdents", "SYS_getdents64"},
	SysPread:       {"pread", "SYS_pread64"},
	SysPwrite:      {"pwrite", "SYS_pwrite64"},
	SysFstat:       {"fstat", "SYS_fstat"},
	SysStat:        {"stat", "SYS_stat"},
	SysLstat:       {"lstat", "SYS_lstat"},
	SysRename:      {"rename", "SYS_rename"},
	SysFsync:       {"fsync", "SYS_fsync"},
	SysFdatasync:   {"fdatasync", "SYS_fdatasync"},
	SysSyncfs:      {"syncfs", "SYS_syncfs"},
	SysSendfile:    {"sendfile", "SYS_sendfile"},
	SysAccess:      {"access", "SYS_access"},
	SysFtruncate:   {"ftruncate", "SYS_ftruncate"},
	SysTruncate:    {"truncate", "SYS_truncate"},
	SysMkdir:       {"mkdir", "SYS_mkdir"},
	SysRmdir:       {"rmdir", "SYS_rmdir"},
	SysLink:        {"link", "SYS_link"},
	SysUnlink:      {"unlink", "SYS_unlink"},
	SysSymlink:     {"symlink", "SYS_symlink"},
	SysSetxattr:    {"setxattr", "SYS_setxattr"},
	SysGetxattr:    {"getxattr", "SYS_getxattr"},
	SysRemovexattr: {"removexattr", "SYS_removexattr"},
	SysListxattr:   {"listxattr", "SYS_listxattr"},
}

// AllSysNos lists every supported syscall in declaration order.
func AllSysNos() []SysNo {
	out := make([]SysNo, 0, numSysNo)
	for nr := SysNo(0); nr < numSysNo; nr++ {
		out = append(out, nr)
	}
	return out
}

// ParseSysNo maps a persisted name such as "open" back to its SysNo.
func ParseSysNo(name string) (SysNo, error) {
	for nr, e := range sysTable {
		if e.name == name {
			return SysNo(nr), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown syscall %q", ErrDecode, name)
}

func (nr SysNo) valid() bool { return nr < numSysNo }

func (nr SysNo) String() string {
	if !nr.valid() {
		return fmt.Sprintf("sysno(%d)", uint8(nr))
	}
	return sysTable[nr].name
}

// ConstName is the <sys/syscall.h> constant for nr, e.g. "SYS_pread64".
func (nr SysNo) ConstName() string {
	if !nr.valid() {
		invariant("ConstName", "syscall number %d out of range", uint8(nr))
	}
	return sysTable[nr].cname
}

func (nr SysNo) MarshalText() ([]byte, error) {
	if !nr.valid() {
		return nil, fmt.Errorf("%w: syscall number %d", ErrDecode, uint8(nr))
	}
	return []byte(sysTable[nr].name), nil
}

func (nr *SysNo) UnmarshalText(b []byte) error {
	v, err := ParseSysNo(string(b))
	if err != nil {
		return err
	}
	*nr = v
	return nil
}

// Syscall is one recorded invocation.
type Syscall struct {
	Nr   SysNo
	Args []Arg
	// Ret is the variable receiving the result, or NoIndex.
	Ret Index
}

func NewSyscall(nr SysNo) Syscall {
	return NewSyscallWithRet(nr, NoIndex)
}

func NewSyscallWithRet(nr SysNo, ret Index) Syscall {
	return Syscall{Nr: nr, Ret: ret}
}

// AddArg appends an argument built with NewArg.
func (s *Syscall) AddArg(value int64, isVariable bool) {
	s.Args = append(s.Args, NewArg(value, isVariable))
}

func (s Syscall) Equal(o Syscall) bool {
	return s.Nr == o.Nr && s.Ret == o.Ret && slices.Equal(s.Args, o.Args)
}

func (s Syscall) clone() Syscall {
	s.Args = slices.Clone(s.Args)
	return s
}
