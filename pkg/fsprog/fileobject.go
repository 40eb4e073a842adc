package fsprog

import (
	"fmt"
	"slices"
	"strings"
)

// Xattr is one extended attribute entry.
type Xattr struct {
	Name  string
	Value string
	Flags int64
}

// FileObject is a filesystem entity the program knows about, cross-referenced
// to the variable holding its path.
type FileObject struct {
	RelPath string
	FType   Kind
	Xattrs  []Xattr
	// DescriptorIndex is stamped by Program.TrackFile.
	DescriptorIndex Index
}

func NewFileObject(path string, ftype Kind, idx Index) FileObject {
	return FileObject{RelPath: path, FType: ftype, DescriptorIndex: idx}
}

func (f FileObject) Equal(o FileObject) bool {
	return f.RelPath == o.RelPath &&
		f.FType == o.FType &&
		f.DescriptorIndex == o.DescriptorIndex &&
		slices.Equal(f.Xattrs, o.Xattrs)
}

func (f FileObject) clone() FileObject {
	f.Xattrs = slices.Clone(f.Xattrs)
	return f
}

func (f FileObject) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Path %s\n Type: ", f.RelPath)
	switch f.FType {
	case KindFile, KindDir, KindSymlink, KindFifo:
		b.WriteString(f.FType.String())
	default:
		b.WriteString("other")
	}
	b.WriteString("\nXattrs:\n")
	for _, x := range f.Xattrs {
		fmt.Fprintf(&b, "\t%s:%s\n", x.Name, x.Value)
	}
	return b.String()
}
