package fsprog

import "fmt"

// Index addresses a variable by its position in the program's variable arena.
type Index int64

// NoIndex marks a syscall whose return value is not captured.
const NoIndex Index = -1

// Kind classifies whether a variable holds a live filesystem resource.
type Kind uint8

const (
	KindNone Kind = iota
	KindFile
	KindDir
	KindSymlink
	KindFifo
	KindMmap
	KindUnknown
)

var kindNames = [...]string{
	KindNone:    "none",
	KindFile:    "file",
	KindDir:     "dir",
	KindSymlink: "symlink",
	KindFifo:    "fifo",
	KindMmap:    "mmap",
	KindUnknown: "unknown",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsDescriptor reports whether variables of this kind are tracked as open descriptors.
func (k Kind) IsDescriptor() bool {
	switch k {
	case KindFile, KindDir, KindSymlink, KindFifo:
		return true
	case KindNone, KindMmap, KindUnknown:
		return false
	}
	return false
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("%w: kind %d", ErrDecode, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown kind %q", ErrDecode, b)
}

// Payload is the declared type and optional initializer of a variable.
// The set of implementations is closed: Integer, Text, ByteBuffer,
// OpaquePointer, MapBase and Unset.
type Payload interface {
	payload()
}

// Integer is a 64-bit signed integer initialized to its value.
type Integer int64

// Text is a NUL-terminated character array.
type Text string

// ByteBuffer is a fixed-size byte array. A nil Content means zero-filled;
// a non-nil (possibly empty) Content is copied in.
type ByteBuffer struct {
	Content []byte
	Size    uint32
}

// OpaquePointer is an untyped pointer slot.
type OpaquePointer struct{}

// MapBase holds the base address of a memory mapping.
type MapBase struct{}

// Unset is a variable with no declared type.
type Unset struct{}

func (Integer) payload()       {}
func (Text) payload()          {}
func (ByteBuffer) payload()    {}
func (OpaquePointer) payload() {}
func (MapBase) payload()       {}
func (Unset) payload()         {}

func clonePayload(p Payload) Payload {
	if b, ok := p.(ByteBuffer); ok && b.Content != nil {
		b.Content = append([]byte{}, b.Content...)
		return b
	}
	return p
}
