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

// emitDataPreamble writes the fixed .data section spec.md §6 requires:
// printf format strings and the two bool-literal message strings, ahead
// of anything the walk itself collects (spec.md §4.3/§6, "Sections
// emitted in order: .data with printf format strings and bool literals").
func (cg *Codegen) emitDataPreamble() {
	cg.buf.Line("section .data")
	cg.buf.Raw(`fmt: db "%ld",10,0`)
	cg.buf.Raw(`fmtf: db "%g",10,0`)
	cg.buf.Raw(`fmts: db "%s",10,0`)
	cg.buf.Raw(`str_true: db "true",10,0`)
	cg.buf.Raw(`str_false: db "false",10,0`)
	cg.buf.Line("")
}

// genPrint lowers `print(expr)` to a single call into the host's libc
// printf (spec.md §4.3 "Print", §6 "extern printf"). Dispatch is purely
// syntactic on the static type already tracked for expr, with one
// deliberate exception: a value that came through `deref(...)` or a
// function call is always formatted as %ld regardless of its real type
// (spec.md §4.2 Open Question (a), preserved per the decision recorded in
// DESIGN.md: a float loaded through a pointer or returned from a function
// prints its raw bits as a decimal integer).
func (cg *Codegen) genPrint(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	typ, err := cg.generateExpr(n.Right)
	if err != nil {
		return err
	}

	arg := cg.pool.Get(n.Right)
	if arg.Kind == NodeDerefRead || arg.Kind == NodeCall {
		cg.emitPrintInt()
		return nil
	}

	switch typ.Kind {
	case TypeStr:
		cg.emitPrintStr()
	case TypeBool:
		cg.emitPrintBool()
	case TypeFloat:
		cg.emitPrintFloat()
	default:
		cg.emitPrintInt()
	}
	return nil
}

// emitPrintInt calls `printf(fmt, rax)` — the %ld path, used for int,
// ptr, and any value whose shape the Open Question (a) bug obscures.
func (cg *Codegen) emitPrintInt() {
	cg.buf.Emit("mov rsi, rax")
	cg.buf.Emit("lea rdi, [rel fmt]")
	cg.buf.Emit("xor eax, eax")
	cg.buf.Emit("call printf")
}

// emitPrintStr calls `printf(fmts, rax)` — rax already holds a pointer
// into .data/.rodata, per the value-in-rax discipline.
func (cg *Codegen) emitPrintStr() {
	cg.buf.Emit("mov rsi, rax")
	cg.buf.Emit("lea rdi, [rel fmts]")
	cg.buf.Emit("xor eax, eax")
	cg.buf.Emit("call printf")
}

// emitPrintFloat bit-copies rax back into xmm0 (spec.md §4.3 "value-in-
// rax discipline") and calls printf with the vararg vector-register count
// (rax) set to 1, the System V convention a variadic call with a float
// argument in a vector register requires.
func (cg *Codegen) emitPrintFloat() {
	cg.buf.Emit("movq xmm0, rax")
	cg.buf.Emit("lea rdi, [rel fmtf]")
	cg.buf.Emit("mov eax, 1")
	cg.buf.Emit("call printf")
}

// emitPrintBool selects one of the two fixed message strings by a
// conditional jump (spec.md §4.3) and prints it as printf's format
// string directly — str_true/str_false contain no conversion specifiers,
// so printf reproduces them verbatim.
func (cg *Codegen) emitPrintBool() {
	trueLabel := cg.newLabel("print_bool_true")
	callLabel := cg.newLabel("print_bool_call")
	cg.buf.Emit("cmp rax, 0")
	cg.buf.Emit("jne %s", trueLabel)
	cg.buf.Emit("lea rdi, [rel str_false]")
	cg.buf.Emit("jmp %s", callLabel)
	cg.buf.Label(trueLabel)
	cg.buf.Emit("lea rdi, [rel str_true]")
	cg.buf.Label(callLabel)
	cg.buf.Emit("xor eax, eax")
	cg.buf.Emit("call printf")
}
