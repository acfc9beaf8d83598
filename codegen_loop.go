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

// tileBlockSize is the loop-tiling block width applied to a literal-
// bounded `for` whose trip count exceeds tileThreshold (spec.md §4.3
// "loop tiling, block size 64").
const (
	tileBlockSize = 64
	tileThreshold = 128
)

// genFor lowers `for i = start to limit [step e] [where cond] ... end`.
// The upper bound is inclusive (spec.md §4.2 Open Question (b), preserved
// verbatim per DESIGN.md), so the loop test is always `i <= limit`.
func (cg *Codegen) genFor(idx NodeIndex) error {
	n := cg.pool.Get(idx)

	if lit, isLit := cg.constIndex(n.Step); isLit && lit < 0 {
		return codegenErrorf("for %q: negative step is not supported", n.Name)
	}

	if cg.optLevel >= OptLevelAll {
		if tripLiteral, ok := cg.constIndex(n.Limit); ok && tripLiteral > tileThreshold {
			if startLit, startOK := cg.constIndex(n.Start); startOK && startLit == 0 {
				if stepLit, stepOK := cg.constIndex(n.Step); stepOK && stepLit == 1 {
					return cg.genForTiled(n, tripLiteral)
				}
			}
		}
	}
	return cg.genForPlain(n)
}

// genForPlain is the general-case lowering: the limit expression is
// evaluated once before the loop (loop-invariant code motion — spec.md
// §4.3 "LICM" — since the grammar gives `for` a fixed limit expression
// that cannot reference the induction variable), the induction variable
// is given a register via the linear-scan allocator when one is free,
// and the where-clause, if present, is tested each iteration to decide
// whether to run the body without affecting the increment/test.
func (cg *Codegen) genForPlain(n *Node) error {
	if _, err := cg.generateExpr(n.Limit); err != nil {
		return err
	}
	limitSlot := cg.frame.Alloc(cg.newLabel("for_limit"), dtInt)
	cg.buf.Emit("mov [rbp%+d], rax", limitSlot.Offset)

	if _, err := cg.generateExpr(n.Start); err != nil {
		return err
	}

	// rec is always allocated, even when the induction variable also gets
	// a register: spec.md §4.3 requires the register value be "mirrored
	// to its stack slot at the increment step so that interior uses that
	// load from memory remain correct" (a `for` body may read the
	// induction variable as a bare identifier, which always resolves
	// through the frame, never through the allocator).
	rec := cg.frame.Alloc(n.Name, dtInt)
	cg.buf.Emit("mov [rbp%+d], rax", rec.Offset)
	var reg string
	var hasReg bool
	if cg.optLevel >= OptLevelAll {
		reg, hasReg = cg.regs.Acquire(n.Name)
		if hasReg {
			cg.buf.Emit("mov %s, rax", reg)
			defer cg.regs.Release(n.Name)
		}
	}

	top := cg.newLabel("for_top")
	step := cg.newLabel("for_step")
	end := cg.newLabel("for_end")
	cg.breakLabels = append(cg.breakLabels, end)
	cg.continueLabels = append(cg.continueLabels, step)
	defer cg.popLoopLabels()

	invariant, rest := cg.hoistLoopInvariantsIfEnabled(n.Body, n.Name)
	for _, s := range invariant {
		if err := cg.generateStmt(s); err != nil {
			return err
		}
	}

	cg.buf.Label(top)
	cg.loadInductionVar(n.Name, reg, hasReg, rec)
	cg.buf.Emit("cmp rax, [rbp%+d]", limitSlot.Offset)
	cg.buf.Emit("jg %s", end)

	if n.Filter != noNode {
		if _, err := cg.generateExpr(n.Filter); err != nil {
			return err
		}
		cg.buf.Emit("cmp rax, 0")
		cg.buf.Emit("je %s", step)
	}

	for _, s := range rest {
		if err := cg.generateStmt(s); err != nil {
			return err
		}
	}

	cg.buf.Label(step)
	if _, err := cg.generateExpr(n.Step); err != nil {
		return err
	}
	cg.buf.Emit("add rax, [rbp%+d]", cg.spillAndReload(n.Name, reg, hasReg, rec))
	cg.storeInductionVar(n.Name, reg, hasReg, rec)
	cg.buf.Emit("jmp %s", top)
	cg.buf.Label(end)
	return nil
}

// loadInductionVar loads the current induction-variable value into rax,
// preferring the register when one was acquired (both are always kept in
// sync by storeInductionVar).
func (cg *Codegen) loadInductionVar(name, reg string, hasReg bool, rec *VariableRecord) {
	if hasReg {
		cg.buf.Emit("mov rax, %s", reg)
		return
	}
	cg.buf.Emit("mov rax, [rbp%+d]", rec.Offset)
}

// storeInductionVar writes the current rax value to the induction
// variable's stack mirror, and additionally to its register if one was
// acquired, so the two never drift apart (spec.md §4.3).
func (cg *Codegen) storeInductionVar(name, reg string, hasReg bool, rec *VariableRecord) {
	cg.buf.Emit("mov [rbp%+d], rax", rec.Offset)
	if hasReg {
		cg.buf.Emit("mov %s, rax", reg)
	}
}

// nodeReferencesName reports whether the subtree rooted at idx contains a
// bare identifier reference to name, walking every child slot a Node can
// carry (spec.md §4.3 "loop-invariant code motion" needs this to decide
// whether a `let` initializer depends on the induction variable).
func (cg *Codegen) nodeReferencesName(idx NodeIndex, name string) bool {
	if idx == noNode {
		return false
	}
	n := cg.pool.Get(idx)
	if n.Kind == NodeIdent && n.Name == name {
		return true
	}
	for _, child := range []NodeIndex{n.Left, n.Right, n.Start, n.Limit, n.Step, n.Filter, n.Body} {
		if cg.nodeReferencesName(child, name) {
			return true
		}
	}
	for _, c := range n.Children {
		if cg.nodeReferencesName(c, name) {
			return true
		}
	}
	return false
}

// hoistLoopInvariantsIfEnabled gates loop-invariant code motion on
// cg.optLevel: at OptLevelNone every statement lowers literally in place,
// on every iteration, with no hoisting.
func (cg *Codegen) hoistLoopInvariantsIfEnabled(bodyIdx NodeIndex, inductionName string) (invariant, rest []NodeIndex) {
	if cg.optLevel < OptLevelAll {
		return nil, cg.pool.Get(bodyIdx).Children
	}
	return cg.hoistLoopInvariants(bodyIdx, inductionName)
}

// hoistLoopInvariants partitions a for-body's top-level statements into
// those that can be evaluated once before the loop (a `let` whose
// initializer never mentions the induction variable) and those that must
// still run on every iteration (spec.md §4.3 "loop-invariant code
// motion"). Only top-level `let` statements are considered, matching
// spec.md's "any top-level let-bound statement" wording.
func (cg *Codegen) hoistLoopInvariants(bodyIdx NodeIndex, inductionName string) (invariant, rest []NodeIndex) {
	body := cg.pool.Get(bodyIdx)
	for _, stmt := range body.Children {
		s := cg.pool.Get(stmt)
		if s.Kind == NodeLet && !cg.nodeReferencesName(s.Right, inductionName) {
			invariant = append(invariant, stmt)
			continue
		}
		rest = append(rest, stmt)
	}
	return invariant, rest
}

// spillAndReload stashes the step expression's freshly computed rax
// value into a scratch slot, reloads the induction variable's current
// value into rax, and returns the scratch slot's offset — so the
// caller's immediately following `add rax, [offset]` computes
// old_i + step without the two values ever needing to share rax at the
// same time.
func (cg *Codegen) spillAndReload(name, reg string, hasReg bool, rec *VariableRecord) int {
	scratch := cg.frame.Alloc(cg.newLabel("for_step_tmp_"+name), dtInt)
	cg.buf.Emit("mov [rbp%+d], rax", scratch.Offset)
	cg.loadInductionVar(name, reg, hasReg, rec)
	return scratch.Offset
}

// genForTiled lowers the `for i = 0 to N step 1` shape, N a literal
// greater than tileThreshold, as two nested loops over blocks of
// tileBlockSize: an outer loop over block-start offsets and an inner
// loop over each block's elements, reusing the same body and where-
// clause for each inner iteration (spec.md §4.3 "loop tiling"). The
// total iteration count and per-iteration semantics are unchanged; only
// the loop's control-flow shape differs, improving data locality for a
// body that indexes an array by the induction variable.
func (cg *Codegen) genForTiled(n *Node, tripCount int) error {
	blockVar := cg.frame.Alloc(cg.newLabel("tile_block"), dtInt)
	innerVar := cg.frame.Alloc(n.Name, dtInt)

	cg.buf.Emit("mov qword [rbp%+d], 0", blockVar.Offset)

	outerTop := cg.newLabel("tile_outer_top")
	outerEnd := cg.newLabel("tile_outer_end")
	innerTop := cg.newLabel("tile_inner_top")
	innerStep := cg.newLabel("tile_inner_step")
	innerEnd := cg.newLabel("tile_inner_end")

	cg.breakLabels = append(cg.breakLabels, outerEnd)
	cg.continueLabels = append(cg.continueLabels, innerStep)
	defer cg.popLoopLabels()

	invariant, rest := cg.hoistLoopInvariantsIfEnabled(n.Body, n.Name)
	for _, s := range invariant {
		if err := cg.generateStmt(s); err != nil {
			return err
		}
	}

	cg.buf.Label(outerTop)
	cg.buf.Emit("mov rax, [rbp%+d]", blockVar.Offset)
	cg.buf.Emit("cmp rax, %d", tripCount+1)
	cg.buf.Emit("jge %s", outerEnd)

	cg.buf.Emit("mov [rbp%+d], rax", innerVar.Offset)

	cg.buf.Label(innerTop)
	cg.buf.Emit("mov rax, [rbp%+d]", innerVar.Offset)
	cg.buf.Emit("cmp rax, %d", tripCount)
	cg.buf.Emit("jg %s", innerEnd)
	cg.buf.Emit("mov r10, [rbp%+d]", blockVar.Offset)
	cg.buf.Emit("add r10, %d", tileBlockSize)
	cg.buf.Emit("cmp rax, r10")
	cg.buf.Emit("jge %s", innerEnd)

	if n.Filter != noNode {
		if _, err := cg.generateExpr(n.Filter); err != nil {
			return err
		}
		cg.buf.Emit("cmp rax, 0")
		cg.buf.Emit("je %s", innerStep)
	}
	for _, s := range rest {
		if err := cg.generateStmt(s); err != nil {
			return err
		}
	}

	cg.buf.Label(innerStep)
	cg.buf.Emit("mov rax, [rbp%+d]", innerVar.Offset)
	cg.buf.Emit("inc rax")
	cg.buf.Emit("mov [rbp%+d], rax", innerVar.Offset)
	cg.buf.Emit("jmp %s", innerTop)
	cg.buf.Label(innerEnd)

	cg.buf.Emit("mov rax, [rbp%+d]", blockVar.Offset)
	cg.buf.Emit("add rax, %d", tileBlockSize)
	cg.buf.Emit("mov [rbp%+d], rax", blockVar.Offset)
	cg.buf.Emit("jmp %s", outerTop)
	cg.buf.Label(outerEnd)
	return nil
}
