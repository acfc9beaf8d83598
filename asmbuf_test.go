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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputBuffer_EmitIndentsAndLineDoesNot(t *testing.T) {
	b := NewOutputBuffer()
	b.Line("main:")
	b.Emit("mov rax, %d", 1)
	got := b.text.String()
	if got != "main:\n\tmov rax, 1\n" {
		t.Fatalf("got %q", got)
	}
}

func TestOutputBuffer_RawDoesNotInterpretPercent(t *testing.T) {
	b := NewOutputBuffer()
	b.Raw(`fmt: db "%ld", 10, 0`)
	if !strings.Contains(b.text.String(), `"%ld"`) {
		t.Fatalf("got %q, expected the literal %%ld to survive", b.text.String())
	}
}

func TestOutputBuffer_InternStringEncodesBytesAndNulTerminates(t *testing.T) {
	b := NewOutputBuffer()
	b.InternString("str_1", "hi")
	got := b.strings.String()
	want := "str_1: db 104,105,0\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputBuffer_InternStringHandlesEmptyValue(t *testing.T) {
	b := NewOutputBuffer()
	b.InternString("str_1", "")
	if got := b.strings.String(); got != "str_1: db 0\n" {
		t.Fatalf("got %q", got)
	}
}

func TestOutputBuffer_NextStringLabelIsUniqueAndSequential(t *testing.T) {
	b := NewOutputBuffer()
	first := b.NextStringLabel()
	second := b.NextStringLabel()
	if first == second {
		t.Fatalf("expected distinct labels, got %q twice", first)
	}
	if first != "str_1" || second != "str_2" {
		t.Fatalf("got %q, %q; want str_1, str_2", first, second)
	}
}

func TestOutputBuffer_ScratchRoundTripReplaysCapturedBytes(t *testing.T) {
	b := NewOutputBuffer()
	b.Line("fn_add:")
	saved := b.beginScratch()
	b.Emit("mov rax, rdi")
	body := b.endScratch(saved)
	b.Line("sub rsp, 16")
	b.WriteRaw(body)
	got := b.text.String()
	want := "fn_add:\nsub rsp, 16\n\tmov rax, rdi\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputBuffer_FlushWritesTextThenDataSection(t *testing.T) {
	b := NewOutputBuffer()
	b.Line("main:")
	b.InternString("str_1", "hi")
	path := filepath.Join(t.TempDir(), "out.asm")
	if err := b.Flush(path); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data := string(raw)
	if !strings.HasPrefix(data, "main:\n") {
		t.Fatalf("expected the code section first, got %q", data)
	}
	if !strings.Contains(data, "section .data\nstr_1: db 104,105,0\n") {
		t.Fatalf("expected a trailing .data section with the interned string, got %q", data)
	}
}

func TestOutputBuffer_FlushOmitsDataSectionWhenNoStringsInterned(t *testing.T) {
	b := NewOutputBuffer()
	b.Line("main:")
	path := filepath.Join(t.TempDir(), "out.asm")
	if err := b.Flush(path); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data := string(raw)
	if strings.Contains(data, "section .data") {
		t.Fatalf("did not expect a .data section with no interned strings, got %q", data)
	}
}
