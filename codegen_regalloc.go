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

// loopRegs names the two callee-saved general-purpose registers reserved
// for loop induction variables (spec.md §4.3 "two-register linear-scan
// allocator"). Only `for` loops participate: `while`/`do-while` induction
// state, if any, always lives on the stack.
var loopRegs = [2]string{"r12", "r13"}

// RegAllocator is a trivial linear-scan allocator scoped to the nested
// `for` loops active at any point in a function body: the outermost two
// live induction variables get a register each; anything nested deeper
// falls back to its stack slot. This matches spec.md §4.3's explicit
// two-register budget rather than attempting general graph coloring.
type RegAllocator struct {
	active [len(loopRegs)]string // active[i] names the variable holding loopRegs[i]; "" means free
}

// NewRegAllocator returns an allocator with both registers free.
func NewRegAllocator() *RegAllocator {
	return &RegAllocator{}
}

// Acquire assigns a register to name if one is free, returning the
// register name and whether the assignment succeeded. A failed Acquire
// means the caller must keep that induction variable on the stack.
func (r *RegAllocator) Acquire(name string) (string, bool) {
	for i, n := range r.active {
		if n == "" {
			r.active[i] = name
			return loopRegs[i], true
		}
	}
	return "", false
}

// Release frees the register held by name, if any, making it available
// to an enclosing loop's sibling or a later loop at the same nesting
// depth.
func (r *RegAllocator) Release(name string) {
	for i, n := range r.active {
		if n == name {
			r.active[i] = ""
			return
		}
	}
}

// RegisterFor reports the register currently backing name, if any.
func (r *RegAllocator) RegisterFor(name string) (string, bool) {
	for i, n := range r.active {
		if n == name {
			return loopRegs[i], true
		}
	}
	return "", false
}
