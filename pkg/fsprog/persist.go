package fsprog

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Format selects the persisted encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml paths and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

type programWire struct {
	Variables      []variableWire `json:"variables" yaml:"variables"`
	Syscalls       []syscallWire  `json:"syscalls" yaml:"syscalls"`
	ActiveFDs      []Index        `json:"active_fds" yaml:"active_fds"`
	ActiveFileFDs  []Index        `json:"active_file_fds" yaml:"active_file_fds"`
	ActiveDirFDs   []Index        `json:"active_dir_fds" yaml:"active_dir_fds"`
	ActiveMapBases []Index        `json:"active_map_base_idx" yaml:"active_map_base_idx"`
	AvailFiles     []fileWire     `json:"avail_files" yaml:"avail_files"`
	AvailDirs      []fileWire     `json:"avail_dirs" yaml:"avail_dirs"`
	AvailNonDirs   []fileWire     `json:"avail_non_dirs" yaml:"avail_non_dirs"`
}

type variableWire struct {
	Name    string      `json:"name" yaml:"name"`
	Payload payloadWire `json:"var_type" yaml:"var_type"`
	Kind    Kind        `json:"kind" yaml:"kind"`
}

// payloadWire flattens the payload variants. Type names the variant; the
// remaining fields are set only for the variants that carry them.
type payloadWire struct {
	Type    string  `json:"type" yaml:"type"`
	Int     *int64  `json:"int,omitempty" yaml:"int,omitempty"`
	Text    *string `json:"text,omitempty" yaml:"text,omitempty"`
	TextHex *string `json:"text_hex,omitempty" yaml:"text_hex,omitempty"`
	Content *string `json:"content,omitempty" yaml:"content,omitempty"` // hex
	Size    *uint32 `json:"size,omitempty" yaml:"size,omitempty"`
}

type syscallWire struct {
	Nr       SysNo     `json:"nr" yaml:"nr"`
	Args     []argWire `json:"args" yaml:"args"`
	RetIndex Index     `json:"ret_index" yaml:"ret_index"`
}

type argWire struct {
	Value      *int64 `json:"value" yaml:"value"`
	Index      *Index `json:"index" yaml:"index"`
	IsVariable bool   `json:"is_variable" yaml:"is_variable"`
}

type fileWire struct {
	RelPath    *string     `json:"rel_path,omitempty" yaml:"rel_path,omitempty"`
	RelPathHex *string     `json:"rel_path_hex,omitempty" yaml:"rel_path_hex,omitempty"`
	FType   Kind        `json:"ftype" yaml:"ftype"`
	Xattrs  []xattrWire `json:"xattrs" yaml:"xattrs"`
	FDIndex Index       `json:"fd_index" yaml:"fd_index"`
}

type xattrWire struct {
	Name     *string `json:"name,omitempty" yaml:"name,omitempty"`
	NameHex  *string `json:"name_hex,omitempty" yaml:"name_hex,omitempty"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
	ValueHex *string `json:"value_hex,omitempty" yaml:"value_hex,omitempty"`
	Flags    int64   `json:"flags" yaml:"flags"`
}

const (
	payloadInteger       = "integer"
	payloadText          = "text"
	payloadByteBuffer    = "byte_buffer"
	payloadOpaquePointer = "opaque_pointer"
	payloadMapBase       = "map_base"
	payloadUnset         = "unset"
)

// mapSlice converts element-wise and keeps nil distinct from empty.
func mapSlice[T, U any](in []T, f func(T) (U, error)) ([]U, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]U, len(in))
	for i, v := range in {
		u, err := f(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

func must[T, U any](f func(T) U) func(T) (U, error) {
	return func(v T) (U, error) { return f(v), nil }
}

// byteString splits s into its plain form when it is valid UTF-8 and its hex
// form otherwise. JSON strings cannot hold arbitrary bytes.
func byteString(s string) (plain, hexed *string) {
	if utf8.ValidString(s) {
		return &s, nil
	}
	h := hex.EncodeToString([]byte(s))
	return nil, &h
}

func fromByteString(field string, plain, hexed *string) (string, error) {
	switch {
	case plain != nil && hexed == nil:
		return *plain, nil
	case plain == nil && hexed != nil:
		b, err := hex.DecodeString(*hexed)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrDecode, field, err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%w: %s must carry exactly one of its plain or hex form", ErrDecode, field)
}

func encodePayload(p Payload) (payloadWire, error) {
	switch v := p.(type) {
	case Integer:
		n := int64(v)
		return payloadWire{Type: payloadInteger, Int: &n}, nil
	case Text:
		w := payloadWire{Type: payloadText}
		w.Text, w.TextHex = byteString(string(v))
		return w, nil
	case ByteBuffer:
		size := v.Size
		w := payloadWire{Type: payloadByteBuffer, Size: &size}
		if v.Content != nil {
			c := hex.EncodeToString(v.Content)
			w.Content = &c
		}
		return w, nil
	case OpaquePointer:
		return payloadWire{Type: payloadOpaquePointer}, nil
	case MapBase:
		return payloadWire{Type: payloadMapBase}, nil
	case Unset:
		return payloadWire{Type: payloadUnset}, nil
	default:
		return payloadWire{}, fmt.Errorf("encode payload %T: %w", p, ErrUnsupportedPayload)
	}
}

func decodePayload(w payloadWire) (Payload, error) {
	switch w.Type {
	case payloadInteger:
		if w.Int == nil {
			return nil, fmt.Errorf("%w: integer payload without value", ErrDecode)
		}
		return Integer(*w.Int), nil
	case payloadText:
		s, err := fromByteString("text", w.Text, w.TextHex)
		if err != nil {
			return nil, err
		}
		return Text(s), nil
	case payloadByteBuffer:
		if w.Size == nil {
			return nil, fmt.Errorf("%w: byte buffer without size", ErrDecode)
		}
		b := ByteBuffer{Size: *w.Size}
		if w.Content != nil {
			c, err := hex.DecodeString(*w.Content)
			if err != nil {
				return nil, fmt.Errorf("%w: byte buffer content: %v", ErrDecode, err)
			}
			b.Content = append([]byte{}, c...)
		}
		return b, nil
	case payloadOpaquePointer:
		return OpaquePointer{}, nil
	case payloadMapBase:
		return MapBase{}, nil
	case payloadUnset:
		return Unset{}, nil
	}
	return nil, fmt.Errorf("%w: unknown payload type %q", ErrDecode, w.Type)
}

func encodeArg(a Arg) argWire {
	if idx, ok := a.Index(); ok {
		return argWire{Index: &idx, IsVariable: true}
	}
	v, _ := a.Literal()
	return argWire{Value: &v}
}

func decodeArg(w argWire) (Arg, error) {
	switch {
	case w.IsVariable && w.Index != nil && w.Value == nil && *w.Index >= 0:
		return Arg{index: *w.Index, isVariable: true}, nil
	case !w.IsVariable && w.Value != nil && w.Index == nil:
		return Arg{value: *w.Value}, nil
	}
	return Arg{}, fmt.Errorf("%w: argument must carry exactly one of value or index", ErrDecode)
}

func encodeFile(f FileObject) fileWire {
	xs, _ := mapSlice(f.Xattrs, must(func(x Xattr) xattrWire {
		w := xattrWire{Flags: x.Flags}
		w.Name, w.NameHex = byteString(x.Name)
		w.Value, w.ValueHex = byteString(x.Value)
		return w
	}))
	w := fileWire{FType: f.FType, Xattrs: xs, FDIndex: f.DescriptorIndex}
	w.RelPath, w.RelPathHex = byteString(f.RelPath)
	return w
}

func decodeFile(w fileWire) (FileObject, error) {
	path, err := fromByteString("rel_path", w.RelPath, w.RelPathHex)
	if err != nil {
		return FileObject{}, err
	}
	xs, err := mapSlice(w.Xattrs, func(x xattrWire) (Xattr, error) {
		name, err := fromByteString("xattr name", x.Name, x.NameHex)
		if err != nil {
			return Xattr{}, err
		}
		value, err := fromByteString("xattr value", x.Value, x.ValueHex)
		if err != nil {
			return Xattr{}, err
		}
		return Xattr{Name: name, Value: value, Flags: x.Flags}, nil
	})
	if err != nil {
		return FileObject{}, fmt.Errorf("file %q: %w", path, err)
	}
	return FileObject{RelPath: path, FType: w.FType, Xattrs: xs, DescriptorIndex: w.FDIndex}, nil
}

func (p *Program) toWire() (programWire, error) {
	vars, err := mapSlice(p.variables, func(v Variable) (variableWire, error) {
		pw, err := encodePayload(v.Payload)
		if err != nil {
			return variableWire{}, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		return variableWire{Name: v.Name, Payload: pw, Kind: v.Kind}, nil
	})
	if err != nil {
		return programWire{}, err
	}
	calls, _ := mapSlice(p.syscalls, must(func(s Syscall) syscallWire {
		args, _ := mapSlice(s.Args, must(encodeArg))
		return syscallWire{Nr: s.Nr, Args: args, RetIndex: s.Ret}
	}))
	files, _ := mapSlice(p.availFiles, must(encodeFile))
	dirs, _ := mapSlice(p.availDirs, must(encodeFile))
	nonDirs, _ := mapSlice(p.availNonDirs, must(encodeFile))
	return programWire{
		Variables:      vars,
		Syscalls:       calls,
		ActiveFDs:      p.activeFDs,
		ActiveFileFDs:  p.activeFileFDs,
		ActiveDirFDs:   p.activeDirFDs,
		ActiveMapBases: p.activeMapBases,
		AvailFiles:     files,
		AvailDirs:      dirs,
		AvailNonDirs:   nonDirs,
	}, nil
}

func fromWire(w programWire) (*Program, error) {
	vars, err := mapSlice(w.Variables, func(v variableWire) (Variable, error) {
		payload, err := decodePayload(v.Payload)
		if err != nil {
			return Variable{}, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		return Variable{Name: v.Name, Payload: payload, Kind: v.Kind}, nil
	})
	if err != nil {
		return nil, err
	}
	calls, err := mapSlice(w.Syscalls, func(s syscallWire) (Syscall, error) {
		args, err := mapSlice(s.Args, decodeArg)
		if err != nil {
			return Syscall{}, fmt.Errorf("syscall %s: %w", s.Nr, err)
		}
		return Syscall{Nr: s.Nr, Args: args, Ret: s.RetIndex}, nil
	})
	if err != nil {
		return nil, err
	}
	files, err := mapSlice(w.AvailFiles, decodeFile)
	if err != nil {
		return nil, err
	}
	dirs, err := mapSlice(w.AvailDirs, decodeFile)
	if err != nil {
		return nil, err
	}
	nonDirs, err := mapSlice(w.AvailNonDirs, decodeFile)
	if err != nil {
		return nil, err
	}
	return &Program{
		variables:      vars,
		syscalls:       calls,
		activeFDs:      w.ActiveFDs,
		activeFileFDs:  w.ActiveFileFDs,
		activeDirFDs:   w.ActiveDirFDs,
		activeMapBases: w.ActiveMapBases,
		availFiles:     files,
		availDirs:      dirs,
		availNonDirs:   nonDirs,
	}, nil
}

// Encode serializes p in the given format.
func (p *Program) Encode(format Format) ([]byte, error) {
	w, err := p.toWire()
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(w, "", "  ")
	case FormatYAML:
		return yaml.Marshal(w)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Decode parses a program. Unknown fields, trailing data, malformed values
// and inconsistent descriptor sets fail with ErrDecode.
func Decode(data []byte, format Format) (*Program, error) {
	var w programWire
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("%w: trailing data after program", ErrDecode)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		var extra any
		if err := dec.Decode(&extra); err != io.EOF {
			return nil, fmt.Errorf("%w: trailing document after program", ErrDecode)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	p, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	if err := errors.Join(p.descriptorSetErrors()...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}

// Save writes p to path, choosing the encoding from the extension.
func (p *Program) Save(path string) error {
	data, err := p.Encode(FormatForPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save program: %w", err)
	}
	return nil
}

// Load reads a program written by Save.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	p, err := Decode(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", path, err)
	}
	return p, nil
}
