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

// genArrayDecl lowers `let name: type[size] = {v0, v1, ...}`: each
// initializer is evaluated in order and stored into its slot.
func (cg *Codegen) genArrayDecl(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	base := cg.frame.AllocArray(n.Name, n.Type, n.ArraySize)
	for i, v := range n.Children {
		if _, err := cg.generateExpr(v); err != nil {
			return err
		}
		cg.buf.Emit("mov [rbp%+d], rax", base.Offset-8*i)
	}
	return nil
}

func (cg *Codegen) genArrayIndexRead(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	arrName := cg.pool.Get(n.Left)
	rec, ok := cg.frame.Lookup(arrName.Name)
	if !ok {
		return dtUnknown, codegenErrorf("use of undeclared array %q", arrName.Name)
	}
	if lit, isLit := cg.constIndex(n.Right); isLit {
		cg.buf.Emit("mov rax, [rbp%+d]", rec.Offset-8*lit)
		return rec.Type, nil
	}
	if _, err := cg.generateExpr(n.Right); err != nil {
		return dtUnknown, err
	}
	cg.buf.Emit("lea r10, [rbp%+d]", rec.Offset)
	cg.buf.Emit("neg rax")
	cg.buf.Emit("lea rax, [r10+rax*8]")
	cg.buf.Emit("mov rax, [rax]")
	return rec.Type, nil
}

func (cg *Codegen) genArrayIndexWrite(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	rec, ok := cg.frame.Lookup(n.Name)
	if !ok {
		return codegenErrorf("use of undeclared array %q", n.Name)
	}
	if lit, isLit := cg.constIndex(n.Left); isLit {
		if _, err := cg.generateExpr(n.Right); err != nil {
			return err
		}
		cg.buf.Emit("mov [rbp%+d], rax", rec.Offset-8*lit)
		return nil
	}
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	cg.buf.Emit("push rax")
	if _, err := cg.generateExpr(n.Right); err != nil {
		return err
	}
	cg.buf.Emit("pop r10")
	cg.buf.Emit("neg r10")
	cg.buf.Emit("lea r11, [rbp%+d]", rec.Offset)
	cg.buf.Emit("lea r11, [r11+r10*8]")
	cg.buf.Emit("mov [r11], rax")
	return nil
}

// constIndex reports whether idx is a bare (optionally negated) numeric
// literal, so an array access can fold straight to a fixed offset instead
// of emitting runtime address arithmetic, and so a `for` loop's bounds
// can be inspected for tiling eligibility and a negative step rejected
// (spec.md §4.2 Open Question (c)) even though the lexer itself only
// ever produces non-negative integer literals — unary minus on a literal
// parses as NodeNeg wrapping NodeNumber, not a negative NodeNumber.
func (cg *Codegen) constIndex(idx NodeIndex) (int, bool) {
	n := cg.pool.Get(idx)
	if n.Kind == NodeNumber {
		return int(n.IntVal), true
	}
	if n.Kind == NodeNeg {
		if v, ok := cg.constIndex(n.Right); ok {
			return -v, true
		}
	}
	return 0, false
}

// genFieldRead lowers `expr.field`: expr must evaluate to a struct
// base address in rax (structs live on the stack as a single base
// address the same as an array does), then the field's offset is added.
func (cg *Codegen) genFieldRead(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	baseType, structDef, err := cg.structBase(n.Left)
	if err != nil {
		return dtUnknown, err
	}
	field, ok := structDef.FieldByName(n.StrVal)
	if !ok {
		return dtUnknown, codegenErrorf("struct %q has no field %q", structDef.Name, n.StrVal)
	}
	// Field i was stored at scratch.Offset-8*i in genStructCtor, so the
	// base address in rax must be walked the same direction here.
	cg.buf.Emit("mov rax, [rax-%d]", field.Offset)
	_ = baseType
	return field.Type, nil
}

func (cg *Codegen) genFieldAssign(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	_, structDef, err := cg.structBase(n.Left)
	if err != nil {
		return err
	}
	field, ok := structDef.FieldByName(n.StrVal)
	if !ok {
		return codegenErrorf("struct %q has no field %q", structDef.Name, n.StrVal)
	}
	cg.buf.Emit("push rax") // base address from structBase's NodeIdent eval
	if _, err := cg.generateExpr(n.Right); err != nil {
		return err
	}
	cg.buf.Emit("pop r10")
	cg.buf.Emit("mov [r10-%d], rax", field.Offset)
	return nil
}

// structBase evaluates a struct-typed expression to its base address in
// rax and resolves its StructDef by the frame-declared type.
func (cg *Codegen) structBase(idx NodeIndex) (DataType, *StructDef, error) {
	typ, err := cg.generateExpr(idx)
	if err != nil {
		return dtUnknown, nil, err
	}
	if typ.Kind != TypeStruct {
		return dtUnknown, nil, codegenErrorf("field access on non-struct value of type %s", typ)
	}
	// The parser never produces a struct-typed expression whose StructName
	// isn't registered (parseTypeAnnotation requires the struct to already
	// be defined), so a miss here is an internal error, not a user one.
	return typ, cg.structs.MustLookup(typ.StructName), nil
}

// genStructCtor lowers `Name(v0, v1, ...)`: allocates a frame-resident
// scratch slot for the struct, stores each argument at its field's
// offset in order, and leaves the base address in rax (the same
// address-in-rax shape field reads/writes expect).
func (cg *Codegen) genStructCtor(idx NodeIndex) (DataType, error) {
	n := cg.pool.Get(idx)
	// As in structBase, parsePrimaryIdent only builds a NodeStructCtor
	// after confirming the struct name is registered, so this is a
	// Must-shaped lookup rather than a user-facing error path.
	def := cg.structs.MustLookup(n.Name)
	if len(n.Children) != len(def.Fields) {
		return dtUnknown, codegenErrorf("struct %q constructor expects %d arguments, got %d", n.Name, len(def.Fields), len(n.Children))
	}
	scratch := cg.frame.AllocArray(cg.newLabel("struct_"+n.Name), dtStructOf(n.Name), len(def.Fields))
	for i, arg := range n.Children {
		if _, err := cg.generateExpr(arg); err != nil {
			return dtUnknown, err
		}
		cg.buf.Emit("mov [rbp%+d], rax", scratch.Offset-8*i)
	}
	cg.buf.Emit("lea rax, [rbp%+d]", scratch.Offset)
	return dtStructOf(n.Name), nil
}
