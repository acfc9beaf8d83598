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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	outputPath string
	optLevel   int
	doAssemble bool
	doLink     bool
	doRun      bool
)

// command is the root CLI, built the same way as the teacher's cobra
// command in main.go: a single RunE doing the real work, flags
// registered in init(), every error funneled to a single os.Exit(1).
var command = &cobra.Command{
	Use:   "kc [source]",
	Short: "Compile a program to x86-64 NASM assembly",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCompile,
}

func init() {
	command.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output assembly path (default: <source>.asm)")
	command.PersistentFlags().IntVarP(&optLevel, "opt-level", "O", OptLevelAll, "optimization level: 0 lowers every op literally (no peephole strength reduction, CSE, loop-register allocation, LICM, or tiling), 1 enables all of them")
	command.PersistentFlags().BoolVar(&doAssemble, "assemble", false, "invoke nasm on the generated assembly")
	command.PersistentFlags().BoolVar(&doLink, "link", false, "link the assembled object with cc (implies --assemble)")
	command.PersistentFlags().BoolVar(&doRun, "run", false, "execute the linked binary (implies --link)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print non-fatal diagnostics (e.g. shadowing notes) to stderr")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	srcPath := "main.k"
	if len(args) == 1 {
		srcPath = args[0]
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read %q: %w", srcPath, err)
	}

	asmPath := outputPath
	if asmPath == "" {
		asmPath = strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".asm"
	}

	if err := Compile(src, asmPath, optLevel); err != nil {
		return err
	}
	logf("wrote %s", asmPath)

	if !doAssemble && !doLink && !doRun {
		return nil
	}

	objPath := strings.TrimSuffix(asmPath, filepath.Ext(asmPath)) + ".o"
	if err := runToolchain("nasm", "-f", "elf64", "-o", objPath, asmPath); err != nil {
		return err
	}
	logf("assembled %s", objPath)

	if !doLink && !doRun {
		return nil
	}

	// Linking goes through cc, not a bare ld invocation: the emitted
	// assembly calls into printf/strlen/exit (spec.md §6), and only a
	// C-library-aware linker driver pulls in libc and the crt startup
	// object that calls main (spec.md §6 "Consumed by external
	// collaborators").
	binPath := strings.TrimSuffix(objPath, filepath.Ext(objPath))
	if err := runToolchain("cc", "-no-pie", "-o", binPath, objPath); err != nil {
		return err
	}
	logf("linked %s", binPath)

	if !doRun {
		return nil
	}

	absBin, err := filepath.Abs(binPath)
	if err != nil {
		return err
	}
	return runToolchain(absBin)
}

// runToolchain shells out to an external tool (nasm/cc/the produced
// binary), passing its stdout and stderr straight through, mirroring the
// teacher's runCommand helper in main.go.
func runToolchain(name string, args ...string) error {
	c := exec.Command(name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Compile runs the full pipeline — lex, parse, generate — and flushes
// the resulting NASM text to outPath. Every stage's first error is
// fatal (spec.md §7): there is no diagnostic accumulation or recovery.
// optLevel (OptLevelNone/OptLevelAll) selects whether the codegen's
// optional passes — strength reduction, CSE, loop-register allocation,
// LICM, tiling — run.
func Compile(src []byte, outPath string, optLevel int) error {
	tokens, err := NewLexer(src).Lex()
	if err != nil {
		return err
	}

	pool := NewNodePool()
	structs := NewStructRegistry()
	root, err := NewParser(tokens, pool, structs).Parse()
	if err != nil {
		return err
	}

	cg := NewCodegen(pool, structs, optLevel)
	out, err := cg.Generate(root)
	if err != nil {
		return err
	}

	return out.Flush(outPath)
}
