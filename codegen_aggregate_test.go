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
	"strings"
	"testing"
)

func TestGenerate_ArrayIndexWithLiteralIndexFoldsToFixedOffset(t *testing.T) {
	asm := generateAsm(t, "let a: int[3] = {10, 20, 30}\nlet x = a[1]")
	if !strings.Contains(asm, "mov rax, [rbp") || strings.Contains(asm, "lea rax, [r10+rax*8]") {
		t.Fatalf("expected a[1] with a literal index to fold to a direct offset load, not runtime address math:\n%s", asm)
	}
}

func TestGenerate_ArrayIndexWithVariableIndexComputesAddress(t *testing.T) {
	asm := generateAsm(t, "let a: int[3] = {10, 20, 30}\nlet i = 1\nlet x = a[i]")
	if !strings.Contains(asm, "lea rax, [r10+rax*8]") {
		t.Fatalf("expected a non-literal index to compute its address at runtime:\n%s", asm)
	}
}

func TestGenerate_ArrayIndexWrite(t *testing.T) {
	asm := generateAsm(t, "let a: int[3] = {10, 20, 30}\nlet i = 0\na[i] = 99")
	if !strings.Contains(asm, "mov [r11], rax") {
		t.Fatalf("expected a runtime-indexed array store:\n%s", asm)
	}
}

func TestGenerate_StructFieldAssignment(t *testing.T) {
	asm := generateAsm(t, `
struct Point
	x: int
	y: int
end
let p = Point(1, 2)
p.x = 5
`)
	if !strings.Contains(asm, "mov [r10-0], rax") {
		t.Fatalf("expected a field-assignment store to offset 0:\n%s", asm)
	}
}

func TestGenerate_StructCtorArgCountMismatchIsFatal(t *testing.T) {
	err := generateAsmErr(t, `
struct Point
	x: int
	y: int
end
let p = Point(1)
`)
	if err == nil {
		t.Fatal("expected a codegen error for a struct constructor arity mismatch")
	}
}

func TestGenerate_FieldAccessOnNonStructValueIsFatal(t *testing.T) {
	err := generateAsmErr(t, "let x = 1\nlet y = x.field")
	if err == nil {
		t.Fatal("expected a codegen error for field access on a non-struct value")
	}
}
