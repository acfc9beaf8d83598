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

// VariableRecord describes one stack-resident local: its frame offset
// (always negative, relative to rbp), its type, and whether it owns a
// heap allocation that must be released in the function epilogue.
type VariableRecord struct {
	Name   string
	Offset int // e.g. -8 means [rbp-8]
	Type   DataType
	Owned  bool // set by `let p = alloc(n)`; swept in the epilogue
}

// paramRegs64 lists the System V AMD64 integer argument registers, in
// order, used both to receive incoming parameters and to marshal
// outgoing call arguments (spec.md §4.3 "Calling convention").
var paramRegs64 = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Frame tracks one function's stack layout as it is built: every local
// gets an 8-byte slot (bool values included; every store and load moves
// the full 8 bytes of rax, so a bool is not written as a single byte), slots are
// handed out downward from rbp, and the final frame size is rounded up
// to a 16-byte boundary with a 16-byte floor, matching the System V
// stack-alignment requirement at every call site.
type Frame struct {
	vars      map[string]*VariableRecord
	order     []string
	nextSlot  int // next free offset, as a positive byte count
	ownedVars []string
}

// NewFrame returns an empty frame ready to allocate slots for a new
// function body.
func NewFrame() *Frame {
	return &Frame{vars: make(map[string]*VariableRecord)}
}

// Alloc reserves a new slot for name and returns its record. Redeclaring
// an existing name in the same frame reuses its slot (the parser's
// same-block shadow diagnostic already logged the rebind).
func (f *Frame) Alloc(name string, typ DataType) *VariableRecord {
	if rec, ok := f.vars[name]; ok {
		rec.Type = typ
		return rec
	}
	f.nextSlot += 8
	rec := &VariableRecord{Name: name, Offset: -f.nextSlot, Type: typ}
	f.vars[name] = rec
	f.order = append(f.order, name)
	return rec
}

// AllocArray reserves size contiguous 8-byte slots for name and returns
// the record for its base (lowest-indexed) element; element i lives at
// BaseOffset - 8*i, i.e. index 0 is nearest rbp and the array grows
// downward with increasing index, matching how Alloc hands out slots.
func (f *Frame) AllocArray(name string, elemType DataType, size int) *VariableRecord {
	if rec, ok := f.vars[name]; ok {
		return rec
	}
	f.nextSlot += 8 // slot for index 0
	base := -f.nextSlot
	if size > 1 {
		f.nextSlot += 8 * (size - 1)
	}
	rec := &VariableRecord{Name: name, Offset: base, Type: elemType}
	f.vars[name] = rec
	f.order = append(f.order, name)
	return rec
}

// MarkOwned flags name as holding a pointer returned by alloc(), to be
// released in the epilogue sweep.
func (f *Frame) MarkOwned(name string) {
	if rec, ok := f.vars[name]; ok {
		rec.Owned = true
		f.ownedVars = append(f.ownedVars, name)
	}
}

// Lookup returns the slot record for name, if one has been allocated.
func (f *Frame) Lookup(name string) (*VariableRecord, bool) {
	rec, ok := f.vars[name]
	return rec, ok
}

// Size returns the frame's total byte size: nextSlot rounded up to 16,
// with a 16-byte floor even for a function with no locals (spec.md §4.3
// "frame size is a multiple of 16, and at least 16").
func (f *Frame) Size() int {
	n := f.nextSlot
	if n == 0 {
		return 16
	}
	if rem := n % 16; rem != 0 {
		n += 16 - rem
	}
	return n
}
