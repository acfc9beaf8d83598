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

// genIf lowers a chain of NodeIfBranch children: each branch's condition
// (absent on the trailing else, if any) is tested in order, falling
// through to the next test on failure and jumping to a shared end label
// on success.
func (cg *Codegen) genIf(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	end := cg.newLabel("if_end")

	for i, branchIdx := range n.Children {
		branch := cg.pool.Get(branchIdx)
		isLast := i == len(n.Children)-1

		if branch.Left == noNode {
			// bare else: always taken
			if err := cg.generateStmt(branch.Body); err != nil {
				return err
			}
			break
		}

		next := end
		if !isLast {
			next = cg.newLabel("if_next")
		}
		if _, err := cg.generateExpr(branch.Left); err != nil {
			return err
		}
		cg.buf.Emit("cmp rax, 0")
		cg.buf.Emit("je %s", next)
		if err := cg.generateStmt(branch.Body); err != nil {
			return err
		}
		cg.buf.Emit("jmp %s", end)
		if !isLast {
			cg.buf.Label(next)
		}
	}

	cg.buf.Label(end)
	return nil
}

func (cg *Codegen) genWhile(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	top := cg.newLabel("while_top")
	end := cg.newLabel("while_end")

	cg.breakLabels = append(cg.breakLabels, end)
	cg.continueLabels = append(cg.continueLabels, top)
	defer cg.popLoopLabels()

	cg.buf.Label(top)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	cg.buf.Emit("cmp rax, 0")
	cg.buf.Emit("je %s", end)
	if err := cg.generateStmt(n.Body); err != nil {
		return err
	}
	cg.buf.Emit("jmp %s", top)
	cg.buf.Label(end)
	return nil
}

// genDoWhile lowers `do ... while cond`: the body runs once
// unconditionally before the first test (spec.md §4.2).
func (cg *Codegen) genDoWhile(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	top := cg.newLabel("dowhile_top")
	condLabel := cg.newLabel("dowhile_cond")
	end := cg.newLabel("dowhile_end")

	cg.breakLabels = append(cg.breakLabels, end)
	cg.continueLabels = append(cg.continueLabels, condLabel)
	defer cg.popLoopLabels()

	cg.buf.Label(top)
	if err := cg.generateStmt(n.Body); err != nil {
		return err
	}
	cg.buf.Label(condLabel)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	cg.buf.Emit("cmp rax, 0")
	cg.buf.Emit("jne %s", top)
	cg.buf.Label(end)
	return nil
}

func (cg *Codegen) popLoopLabels() {
	cg.breakLabels = cg.breakLabels[:len(cg.breakLabels)-1]
	cg.continueLabels = cg.continueLabels[:len(cg.continueLabels)-1]
}

// genMatch lowers a `match subject ... end`: the subject is evaluated
// once into a scratch slot, then compared against each case value in
// order; a trailing `else` case (Left == noNode) always matches.
func (cg *Codegen) genMatch(idx NodeIndex) error {
	n := cg.pool.Get(idx)
	if _, err := cg.generateExpr(n.Left); err != nil {
		return err
	}
	subject := cg.frame.Alloc(cg.newLabel("match_subject"), dtInt)
	cg.buf.Emit("mov [rbp%+d], rax", subject.Offset)

	end := cg.newLabel("match_end")
	for i, caseIdx := range n.Children {
		c := cg.pool.Get(caseIdx)
		isLast := i == len(n.Children)-1
		next := end
		if !isLast {
			next = cg.newLabel("match_next")
		}

		if c.Left != noNode {
			if _, err := cg.generateExpr(c.Left); err != nil {
				return err
			}
			cg.buf.Emit("cmp rax, [rbp%+d]", subject.Offset)
			cg.buf.Emit("jne %s", next)
		}
		if err := cg.generateStmt(c.Body); err != nil {
			return err
		}
		cg.buf.Emit("jmp %s", end)
		if !isLast {
			cg.buf.Label(next)
		}
	}
	cg.buf.Label(end)
	return nil
}
