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

func TestCompile_WritesAssemblyForAValidProgram(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.asm")
	if err := Compile([]byte(`let x = 1
print(x)
`), outPath, OptLevelAll); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "global main") {
		t.Fatalf("expected a global main entry point in the output, got %q", data)
	}
}

func TestCompile_StopsAtTheFirstLexError(t *testing.T) {
	err := Compile([]byte("let x = `"), filepath.Join(t.TempDir(), "out.asm"), OptLevelAll)
	ce, ok := err.(*CompileError)
	if !ok || ce.Stage != StageLex {
		t.Fatalf("got %v, want a StageLex *CompileError", err)
	}
}

func TestCompile_StopsAtTheFirstParseError(t *testing.T) {
	err := Compile([]byte("let x = "), filepath.Join(t.TempDir(), "out.asm"), OptLevelAll)
	ce, ok := err.(*CompileError)
	if !ok || ce.Stage != StageParse {
		t.Fatalf("got %v, want a StageParse *CompileError", err)
	}
}

func TestCompile_StopsAtTheFirstCodegenError(t *testing.T) {
	err := Compile([]byte("print(nope)"), filepath.Join(t.TempDir(), "out.asm"), OptLevelAll)
	ce, ok := err.(*CompileError)
	if !ok || ce.Stage != StageCodegen {
		t.Fatalf("got %v, want a StageCodegen *CompileError", err)
	}
}
