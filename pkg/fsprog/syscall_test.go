package fsprog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyscallNameTable(t *testing.T) {
	all := AllSysNos()
	require.Len(t, all, 27)
	seen := map[string]bool{}
	for _, nr := range all {
		c := nr.ConstName()
		assert.True(t, strings.HasPrefix(c, "SYS_"), c)
		assert.False(t, seen[c], "duplicate constant %s", c)
		seen[c] = true

		parsed, err := ParseSysNo(nr.String())
		require.NoError(t, err)
		assert.Equal(t, nr, parsed)
	}
	assert.Equal(t, "SYS_open", SysOpen.ConstName())
	assert.Equal(t, "SYS_read", SysRead.ConstName())
	assert.Equal(t, "SYS_pread64", SysPread.ConstName())
	assert.Equal(t, "SYS_pwrite64", SysPwrite.ConstName())
	assert.Equal(t, "SYS_getdents64", SysGetdents.ConstName())
}

func TestParseSysNoUnknown(t *testing.T) {
	_, err := ParseSysNo("ioctl")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSyscallEqual(t *testing.T) {
	a := NewSyscallWithRet(SysWrite, 3)
	a.AddArg(1, true)
	a.AddArg(10, false)
	b := NewSyscallWithRet(SysWrite, 3)
	b.Args = []Arg{Ref(1), Lit(10)}
	assert.True(t, a.Equal(b))

	b.Ret = NoIndex
	assert.False(t, a.Equal(b))
	b.Ret = 3
	b.Args[1] = Ref(10)
	assert.False(t, a.Equal(b))
	assert.True(t, NewSyscall(SysSyncfs).Equal(Syscall{Nr: SysSyncfs, Args: []Arg{}, Ret: NoIndex}))
}

func TestNewArg(t *testing.T) {
	ref := NewArg(4, true)
	idx, ok := ref.Index()
	require.True(t, ok)
	assert.Equal(t, Index(4), idx)
	_, ok = ref.Literal()
	assert.False(t, ok)

	neg := NewArg(-3, true)
	assert.False(t, neg.IsVariable())
	v, ok := neg.Literal()
	require.True(t, ok)
	assert.Equal(t, int64(-3), v)

	lit := NewArg(7, false)
	assert.Equal(t, Lit(7), lit)
	_, ok = lit.Index()
	assert.False(t, ok)

	requireInvariantPanic(t, func() { Ref(-1) })
}

func TestKindText(t *testing.T) {
	for k := KindNone; k <= KindUnknown; k++ {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}
	var k Kind
	assert.ErrorIs(t, k.UnmarshalText([]byte("socket")), ErrDecode)
	assert.True(t, KindSymlink.IsDescriptor())
	assert.False(t, KindMmap.IsDescriptor())
}

func TestFileObjectString(t *testing.T) {
	f := NewFileObject("a/b", KindFifo, 2)
	f.Xattrs = []Xattr{{Name: "user.x", Value: "1"}}
	assert.Equal(t, "Path a/b\n Type: fifo\nXattrs:\n\tuser.x:1\n", f.String())

	f.FType = KindMmap
	assert.Contains(t, f.String(), "Type: other")
}
