// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"fmt"
	"os"
)

// asmBufCapacity and strBufCapacity pre-grow the two output buffers so a
// typical program never triggers a reallocation mid-emit (spec.md §6).
const (
	asmBufCapacity = 4 << 20
	strBufCapacity = 64 << 10
)

// OutputBuffer accumulates generated NASM text across the whole compile,
// then flushes once, mirroring the teacher's generateGoAssembly /
// generateGoStubs strings.Builder-then-os.Create pattern in
// amd64_parser.go and main.go — ported here to bytes.Buffer since the
// output is raw assembly text rather than Go source.
type OutputBuffer struct {
	text    bytes.Buffer
	strings bytes.Buffer
	strSeq  int
}

// NewOutputBuffer returns an OutputBuffer pre-grown to its expected size.
func NewOutputBuffer() *OutputBuffer {
	b := &OutputBuffer{}
	b.text.Grow(asmBufCapacity)
	b.strings.Grow(strBufCapacity)
	return b
}

// Emit appends a formatted instruction line, indented one tab per the
// teacher's assembly-emission convention.
func (b *OutputBuffer) Emit(format string, args ...any) {
	b.text.WriteByte('\t')
	fmt.Fprintf(&b.text, format, args...)
	b.text.WriteByte('\n')
}

// Line appends raw text with no leading indentation (section headers,
// labels).
func (b *OutputBuffer) Line(format string, args ...any) {
	fmt.Fprintf(&b.text, format, args...)
	b.text.WriteByte('\n')
}

// Raw appends a literal line with no printf-style interpretation, for
// text (NASM string directives, in particular) that may itself contain
// '%' bytes that Emit/Line would otherwise try to treat as a verb.
func (b *OutputBuffer) Raw(line string) {
	b.text.WriteString(line)
	b.text.WriteByte('\n')
}

// Label emits a bare label definition.
func (b *OutputBuffer) Label(name string) {
	b.text.WriteString(name)
	b.text.WriteString(":\n")
}

// InternString reserves a label in the string pool for a string literal.
// The literal bytes themselves are appended to the string buffer
// immediately, to be flushed under a trailing .data section header
// (spec.md §4.4/§6 "a trailing .data appendix with collected string
// literals").
func (b *OutputBuffer) InternString(label string, value string) {
	fmt.Fprintf(&b.strings, "%s: db ", label)
	for i := 0; i < len(value); i++ {
		if i > 0 {
			b.strings.WriteByte(',')
		}
		fmt.Fprintf(&b.strings, "%d", value[i])
	}
	if len(value) > 0 {
		b.strings.WriteByte(',')
	}
	b.strings.WriteString("0\n")
}

// NextStringLabel returns a fresh, unique string-pool label.
func (b *OutputBuffer) NextStringLabel() string {
	b.strSeq++
	return fmt.Sprintf("str_%d", b.strSeq)
}

// beginScratch detaches the buffer's current text sink and installs an
// empty one, so a caller can emit a function body before the frame size
// needed by its own prologue is known. Used only by the codegen's
// per-function frame-size fixup (codegen.go's generateEntry/
// generateFunction): the body is built in isolation, its true slot count
// read off cg.frame once finished, and then replayed after a correctly
// sized `sub rsp` is emitted into the real stream.
func (b *OutputBuffer) beginScratch() bytes.Buffer {
	saved := b.text
	b.text = bytes.Buffer{}
	return saved
}

// endScratch captures the scratch text written since beginScratch,
// restores the original sink, and returns the captured bytes for the
// caller to replay with WriteRaw.
func (b *OutputBuffer) endScratch(saved bytes.Buffer) []byte {
	body := append([]byte(nil), b.text.Bytes()...)
	b.text = saved
	return body
}

// WriteRaw appends previously captured scratch bytes verbatim.
func (b *OutputBuffer) WriteRaw(raw []byte) {
	b.text.Write(raw)
}

// Flush writes the accumulated text and string sections to path in one
// pass: code first, then the string pool under a .data header, matching spec.md §6's
// fixed section ordering.
func (b *OutputBuffer) Flush(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return codegenErrorf("cannot open output %q: %v", path, err)
	}
	defer f.Close()

	if _, err := f.Write(b.text.Bytes()); err != nil {
		return codegenErrorf("write output: %v", err)
	}
	if b.strings.Len() > 0 {
		if _, err := f.WriteString("section .data\n"); err != nil {
			return codegenErrorf("write output: %v", err)
		}
		if _, err := f.Write(b.strings.Bytes()); err != nil {
			return codegenErrorf("write output: %v", err)
		}
	}
	return nil
}
