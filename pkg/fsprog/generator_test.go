package fsprog

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministic(t *testing.T) {
	opts := Defaults()
	opts.Seed = 1234

	a, err := Generate(opts)
	require.NoError(t, err)
	b, err := Generate(opts)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b, programOpts); diff != "" {
		t.Fatalf("same seed produced different programs (-a +b):\n%s", diff)
	}

	srcA, err := Render(a)
	require.NoError(t, err)
	srcB, err := Render(b)
	require.NoError(t, err)
	assert.Equal(t, srcA, srcB)
}

func TestGenerateProducesConsistentPrograms(t *testing.T) {
	for seed := uint64(0); seed < 40; seed++ {
		opts := Defaults()
		opts.Seed = seed
		opts.BacktrackProb = int(seed % 60)
		p, err := Generate(opts)
		require.NoError(t, err)

		require.NoError(t, p.Check(), "seed %d", seed)
		assert.LessOrEqual(t, len(p.Syscalls()), opts.MaxSyscalls, "seed %d", seed)
		assert.LessOrEqual(t, len(p.Files()), opts.MaxFiles, "seed %d", seed)

		src, err := Render(p)
		require.NoError(t, err, "seed %d", seed)
		assert.Contains(t, src, `char v2[] = "/tmp/fsprog\x00";`)
		assert.Contains(t, src, "syscall(SYS_mkdir, (long)v2, 493);")
		for _, fd := range p.ActiveFDs() {
			v, _ := p.Variable(fd)
			assert.Contains(t, src, "close("+v.Name+");")
		}
		for _, f := range p.Files() {
			v, ok := p.Variable(f.DescriptorIndex)
			require.True(t, ok, "seed %d", seed)
			assert.Equal(t, Text(f.RelPath), v.Payload, "seed %d", seed)
			assert.Contains(t, src, "\n\""+f.RelPath+"\"\n")
		}
	}
}

func TestGenerateReleasesDescriptors(t *testing.T) {
	var released int
	for seed := uint64(0); seed < 40; seed++ {
		opts := Defaults()
		opts.Seed = seed
		opts.BacktrackProb = 0
		p, err := Generate(opts)
		require.NoError(t, err)
		require.NoError(t, p.Check(), "seed %d", seed)

		src, err := Render(p)
		require.NoError(t, err)
		active := p.ActiveFDs()
		for _, f := range p.Files() {
			if slices.Contains(active, f.DescriptorIndex) {
				continue
			}
			released++
			v, _ := p.Variable(f.DescriptorIndex)
			assert.NotContains(t, src, "close("+v.Name+");", "seed %d", seed)
		}
	}
	assert.Positive(t, released, "no seed released a descriptor")
}

func TestBacktrackRestoresReleasedDescriptor(t *testing.T) {
	g := newGenerator(Defaults())
	g.p.PrepareBuffers()
	g.beginStep()
	require.True(t, g.apply(actCreateFile))
	g.beginStep()
	require.True(t, g.apply(actMkdir))
	want := g.p.Clone()

	snap := g.takeSnapshot()
	g.beginStep()
	require.True(t, g.apply(actRelease))
	require.Len(t, g.p.ActiveFDs(), 1)
	require.NotEqual(t, NoIndex, g.released)

	g.restoreSnapshot(snap)
	assert.ElementsMatch(t, want.ActiveFDs(), g.p.ActiveFDs())
	assert.ElementsMatch(t, want.ActiveFileFDs(), g.p.ActiveFileFDs())
	assert.ElementsMatch(t, want.ActiveDirFDs(), g.p.ActiveDirFDs())
	assert.Equal(t, want.Syscalls(), g.p.Syscalls())
	assert.NoError(t, g.p.Check())

	empty := newGenerator(Defaults())
	assert.False(t, empty.apply(actRelease))
}

func TestGenerateSurvivesPersistence(t *testing.T) {
	opts := Defaults()
	opts.Seed = 99
	p, err := Generate(opts)
	require.NoError(t, err)

	data, err := p.Encode(FormatJSON)
	require.NoError(t, err)
	got, err := Decode(data, FormatJSON)
	require.NoError(t, err)

	want, err := Render(p)
	require.NoError(t, err)
	have, err := Render(got)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestGenerateFullBacktrackKeepsOnlyPrologue(t *testing.T) {
	opts := Defaults()
	opts.Seed = 7
	opts.BacktrackProb = 100
	p, err := Generate(opts)
	require.NoError(t, err)

	assert.Equal(t, 3, p.NumVariables())
	require.Len(t, p.Syscalls(), 1)
	assert.Equal(t, SysMkdir, p.Syscalls()[0].Nr)
	assert.Empty(t, p.Files())
	assert.Empty(t, p.ActiveFDs())
}

func TestGenerateRecordsXattrsOnTrackedFiles(t *testing.T) {
	var found bool
	for seed := uint64(0); seed < 40 && !found; seed++ {
		opts := Defaults()
		opts.Seed = seed
		opts.BacktrackProb = 0
		p, err := Generate(opts)
		require.NoError(t, err)
		for _, f := range p.Files() {
			if len(f.Xattrs) == 0 {
				continue
			}
			found = true
			assert.True(t, strings.HasPrefix(f.Xattrs[0].Name, "user.k"))
		}
	}
	assert.True(t, found, "no seed produced an xattr")
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"max syscalls", func(o *Options) { o.MaxSyscalls = 0 }},
		{"max files", func(o *Options) { o.MaxFiles = 0 }},
		{"backtrack low", func(o *Options) { o.BacktrackProb = -1 }},
		{"backtrack high", func(o *Options) { o.BacktrackProb = 101 }},
		{"relative root", func(o *Options) { o.Root = "tmp" }},
		{"nul root", func(o *Options) { o.Root = "/tmp/\x00" }},
	}
	require.NoError(t, Defaults().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Defaults()
			tt.mutate(&o)
			assert.Error(t, o.Validate())
			_, err := Generate(o)
			assert.Error(t, err)
		})
	}
}

func TestRNGMatchesLrand48(t *testing.T) {
	// srand48(0); lrand48() x3
	r := newRNG(0)
	assert.Equal(t, uint32(366850414), r.next31())
	assert.Equal(t, uint32(1610402240), r.next31())
	assert.Equal(t, uint32(206956554), r.next31())
}
