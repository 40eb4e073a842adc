package fsprog

import (
	"fmt"
	"os"
	"strings"
)

const fileCommentPlaceholder = "<descriptor variable is not text>"

var headers = []string{
	"#define _GNU_SOURCE",
	"#include <sys/types.h>",
	"#include <sys/mount.h>",
	"#include <sys/mman.h>",
	"#include <sys/stat.h>",
	"#include <sys/xattr.h>",
	"#include <sys/syscall.h>",
	"",
	"#include <dirent.h>",
	"#include <errno.h>",
	"#include <fcntl.h>",
	"#include <stdio.h>",
	"#include <stdlib.h>",
	"#include <string.h>",
	"#include <unistd.h>",
}

func writeLine(b *strings.Builder, indent int, s string) {
	for i := 0; i < indent; i++ {
		b.WriteString("    ")
	}
	b.WriteString(s)
	b.WriteByte('\n')
}

// Render emits a standalone C program performing the recorded syscalls.
// The output depends only on p, and p is not modified.
func Render(p *Program) (string, error) {
	var b strings.Builder
	for _, h := range headers {
		writeLine(&b, 0, h)
	}
	b.WriteByte('\n')
	writeLine(&b, 0, "int main(int argc, char *argv[])")
	writeLine(&b, 0, "{")

	for _, v := range p.variables {
		if err := v.declare(&b); err != nil {
			return "", err
		}
	}
	for i, s := range p.syscalls {
		line, err := p.syscallLine(s)
		if err != nil {
			return "", fmt.Errorf("syscall %d: %w", i, err)
		}
		writeLine(&b, 1, line)
	}
	b.WriteByte('\n')

	fdNames := make([]string, 0, len(p.activeFDs))
	for _, idx := range p.activeFDs {
		name, err := p.varName(idx)
		if err != nil {
			return "", fmt.Errorf("active descriptor: %w", err)
		}
		fdNames = append(fdNames, name)
		writeLine(&b, 1, fmt.Sprintf("close(%s);", name))
	}
	writeLine(&b, 1, "return 0;")
	writeLine(&b, 0, "}")

	writeLine(&b, 0, "/* Active fds: "+strings.Join(fdNames, " ")+" */")
	writeLine(&b, 0, "/* Files")
	for _, f := range p.availFiles {
		path, err := p.filePath(f)
		if err != nil {
			return "", err
		}
		writeLine(&b, 0, `"`+path+`"`)
	}
	writeLine(&b, 0, "*/")
	return b.String(), nil
}

// WriteSource renders p and writes the result to path.
func (p *Program) WriteSource(path string) error {
	src, err := Render(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

func (p *Program) syscallLine(s Syscall) (string, error) {
	if !s.Nr.valid() {
		return "", fmt.Errorf("%w: syscall number %d", ErrDecode, uint8(s.Nr))
	}
	var b strings.Builder
	if s.Ret != NoIndex {
		name, err := p.varName(s.Ret)
		if err != nil {
			return "", fmt.Errorf("return capture: %w", err)
		}
		b.WriteString(name)
		b.WriteString(" = ")
	}
	b.WriteString("syscall(")
	b.WriteString(s.Nr.ConstName())
	for _, a := range s.Args {
		if idx, ok := a.Index(); ok {
			name, err := p.varName(idx)
			if err != nil {
				return "", err
			}
			b.WriteString(", (long)")
			b.WriteString(name)
			continue
		}
		v, _ := a.Literal()
		b.WriteString(", ")
		b.WriteString(cInt(v))
	}
	b.WriteString(");")
	return b.String(), nil
}

func (p *Program) varName(idx Index) (string, error) {
	if idx < 0 || int(idx) >= len(p.variables) {
		return "", fmt.Errorf("%w: %d", ErrDanglingIndex, idx)
	}
	return p.variables[idx].Name, nil
}

func (p *Program) filePath(f FileObject) (string, error) {
	idx := f.DescriptorIndex
	if idx < 0 || int(idx) >= len(p.variables) {
		return "", fmt.Errorf("file %s: %w: %d", f.RelPath, ErrDanglingIndex, idx)
	}
	text, ok := p.variables[idx].Payload.(Text)
	if !ok {
		return fileCommentPlaceholder, nil
	}
	// keep the comment block closed
	return strings.ReplaceAll(cEscape([]byte(text)), "*/", `*\/`), nil
}
