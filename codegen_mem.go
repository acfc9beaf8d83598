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

import "golang.org/x/sys/unix"

// Linux x86-64 syscall numbers for the memory/IO builtins (spec.md §4.3
// "alloc/free/open/read/write/close lower to direct syscalls, no libc").
// Sourced from golang.org/x/sys/unix rather than hand-copied magic
// numbers, the same substitution DESIGN.md records for the teacher's
// golang.org/x/sys/cpu dependency.
var (
	sysMmap   = int64(unix.SYS_MMAP)
	sysMunmap = int64(unix.SYS_MUNMAP)
	sysOpen   = int64(unix.SYS_OPEN)
	sysRead   = int64(unix.SYS_READ)
	sysWrite  = int64(unix.SYS_WRITE)
	sysClose  = int64(unix.SYS_CLOSE)
)

// allocFixedSize is the munmap length the epilogue sweep in codegen.go's
// sweepOwnedPointers releases for every owned pointer, whatever size the
// matching `alloc` requested (spec.md §4.3/§9, the known bug recorded in
// DESIGN.md's Open Question decisions).
const allocFixedSize = 1024

// genAlloc lowers `alloc(n)` to an anonymous private mmap of n bytes.
func (cg *Codegen) genAlloc(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Right); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("xor rdi, rdi")
	cg.buf.Emit("mov rsi, rax")
	cg.buf.Emit("mov rdx, 3 ; PROT_READ|PROT_WRITE")
	cg.buf.Emit("mov r10, 0x22 ; MAP_PRIVATE|MAP_ANONYMOUS")
	cg.buf.Emit("mov r8, -1")
	cg.buf.Emit("xor r9, r9")
	cg.buf.Emit("mov rax, %d", sysMmap)
	cg.buf.Emit("syscall")
	return dtPtr, nil
}

// genFree lowers `free(ptr, size)` to munmap(ptr, size).
func (cg *Codegen) genFree(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	cg.buf.Emit("push rax")
	if _, err := cg.generateExpr(n.Right); err != nil {
		return err
	}
	cg.buf.Emit("pop rdi")
	cg.buf.Emit("mov rsi, rax")
	cg.buf.Emit("mov rax, %d", sysMunmap)
	cg.buf.Emit("syscall")
	return nil
}

func (cg *Codegen) genOpenCall(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("push rax")
	if _, err := cg.generateExpr(n.Right); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("mov rsi, rax")
	cg.buf.Emit("pop rdi")
	cg.buf.Emit("mov rdx, 0") // mode 0 (spec.md §4.3 "open emits syscall 2 with mode 0")
	cg.buf.Emit("mov rax, %d", sysOpen)
	cg.buf.Emit("syscall")
	return dtInt, nil
}

// genReadCall and genWriteCall share the same three-argument (fd, buf,
// count) shape; both return the syscall's raw rax (bytes transferred, or
// a negative errno) as an int, per spec.md §4.3.
func (cg *Codegen) genReadCall(idx NodeIndex) (DataType, error) {
	return cg.genIOCall(idx, sysRead)
}

func (cg *Codegen) genWriteCall(idx NodeIndex) (DataType, error) {
	return cg.genIOCall(idx, sysWrite)
}

func (cg *Codegen) genIOCall(idx NodeIndex, syscallNo int64) (DataType, error) {
	n := cg.pool.Get(idx)
	if len(n.Children) != 3 {
		return dtUnknown, codegenErrorf("expected 3 arguments (fd, buf, count), got %d", len(n.Children))
	}
	for _, arg := range n.Children {
		if _, err := cg.generateExpr(arg); err != nil {
			return dtUnknown, err
		}
		cg.buf.Emit("push rax")
	}
	cg.buf.Emit("pop rdx") // count
	cg.buf.Emit("pop rsi") // buf
	cg.buf.Emit("pop rdi") // fd
	cg.buf.Emit("mov rax, %d", syscallNo)
	cg.buf.Emit("syscall")
	return dtInt, nil
}

func (cg *Codegen) genCloseCall(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("mov rdi, rax")
	cg.buf.Emit("mov rax, %d", sysClose)
	cg.buf.Emit("syscall")
	return dtInt, nil
}

// genAddr lowers `addr(v)`: v must already have a stack slot, and its
// address is simply lea'd from the frame.
func (cg *Codegen) genAddr(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	target := cg.pool.Get(n.Right)
	rec, ok := cg.frame.Lookup(target.Name)
	if !ok {
		return dtUnknown, codegenErrorf("addr() of undeclared name %q", target.Name)
	}
	cg.buf.Emit("lea rax, [rbp%+d]", rec.Offset)
	return dtPtr, nil
}

// genDerefRead lowers `deref(p)`: load the pointer, then load through it.
// Because every value — including a pointer-typed one — occupies a
// single 8-byte rax load/store, `deref(addr(v)) == v` holds for any v
// (spec.md §8's round-trip property).
func (cg *Codegen) genDerefRead(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Right); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("mov rax, [rax]")
	return dtInt, nil
}

// genDerefWrite lowers the parser's NodeDerefWrite (`deref(p) = value`).
func (cg *Codegen) genDerefWrite(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	cg.buf.Emit("push rax")
	if _, err := cg.generateExpr(n.Right); err != nil {
		return err
	}
	cg.buf.Emit("pop r10")
	cg.buf.Emit("mov [r10], rax")
	return nil
}

// genStrlen lowers `strlen(s)` to a direct call into the host's libc
// strlen (spec.md §1 "a host that can provide printf and strlen", §6
// "extern strlen") rather than a hand-rolled scan loop.
func (cg *Codegen) genStrlen(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Right); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("mov rdi, rax")
	cg.buf.Emit("call strlen")
	return dtInt, nil
}
