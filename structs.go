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

import "fmt"

// maxStructs and maxFields bound struct and field counts per spec.md §3.
const (
	maxStructs = 256
	maxFields  = 64
)

// FieldDef is one struct field: its name, declared type, and byte offset
// within the struct (always 8 * its position, spec.md §3 invariant).
type FieldDef struct {
	Name   string
	Type   DataType
	Offset int
}

// StructDef is a registered struct: an ordered field list and total size.
type StructDef struct {
	Name   string
	Fields []FieldDef
	Size   int
}

// FieldByName returns the field definition matching name, and whether it
// was found.
func (s *StructDef) FieldByName(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// StructRegistry is the process-wide (per spec.md §3) but, in this Go
// rendition, session-scoped ordered table mapping struct names to their
// field layout (spec.md §3/§9 "Struct registry"). It is populated by the
// parser as `struct` definitions are parsed and consulted by the code
// generator to resolve `.field` access, following the same
// register/lookup shape as the teacher's ArchParser registry in arch.go,
// generalized from a package-level global to an instance threaded through
// the compile explicitly (spec.md §5 forbids shared mutable globals across
// concurrent compiles).
type StructRegistry struct {
	defs  map[string]*StructDef
	order []string
}

// NewStructRegistry returns an empty registry, reset for a new compile.
func NewStructRegistry() *StructRegistry {
	return &StructRegistry{defs: make(map[string]*StructDef)}
}

// Define registers a new struct, computing each field's offset as
// 8*position and the total size as 8*field_count. Redefining an existing
// name, or exceeding maxStructs/maxFields, is a fatal parse error.
func (r *StructRegistry) Define(name string, fieldNames []string, fieldTypes []DataType) (*StructDef, error) {
	if _, exists := r.defs[name]; exists {
		return nil, parseErrorf(0, 0, "struct %q already defined", name)
	}
	if len(r.order) >= maxStructs {
		return nil, parseErrorf(0, 0, "struct count exceeds limit %d", maxStructs)
	}
	if len(fieldNames) > maxFields {
		return nil, parseErrorf(0, 0, "struct %q exceeds field limit %d", name, maxFields)
	}
	fields := make([]FieldDef, len(fieldNames))
	for i := range fieldNames {
		fields[i] = FieldDef{Name: fieldNames[i], Type: fieldTypes[i], Offset: 8 * i}
	}
	def := &StructDef{Name: name, Fields: fields, Size: 8 * len(fields)}
	r.defs[name] = def
	r.order = append(r.order, name)
	return def, nil
}

// Lookup returns the struct definition named name, if registered.
func (r *StructRegistry) Lookup(name string) (*StructDef, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// MustLookup returns the struct definition named name, panicking (recovered
// into a *CompileError at the codegen entry point) if it does not exist —
// only used where an earlier parser check has already proven the struct
// exists, mirroring the teacher's fail-fast GetParser-after-ListArchitectures
// idiom for "can't happen" paths.
func (r *StructRegistry) MustLookup(name string) *StructDef {
	d, ok := r.defs[name]
	if !ok {
		panic(fmt.Sprintf("internal error: struct %q missing from registry", name))
	}
	return d
}

// Names returns struct names in declaration order.
func (r *StructRegistry) Names() []string {
	return r.order
}
