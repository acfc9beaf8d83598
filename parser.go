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

// maxParams bounds function parameters to the System V integer argument
// registers available (spec.md §4.2 "Functions").
const maxParams = 6

// Parser is a Pratt-ish recursive-descent parser over a fixed token
// sequence. It owns no package-level state: tokens, the node pool, and the
// struct registry are all supplied by the caller and scoped to one compile,
// matching spec.md §5's reset-on-entry discipline.
type Parser struct {
	tokens  []Token
	pos     int
	pool    *NodePool
	structs *StructRegistry

	// comptimeVals mirrors top-level `let x = <number>` and
	// `let x = comptime(...)` bindings by name, per spec.md §4.2.
	comptimeVals map[string]int64

	// shadowed tracks identifiers bound in the current block for the
	// same-block-rebind diagnostic supplemented from original_source
	// (non-fatal, logged only — see DESIGN.md).
	shadowed []map[string]bool

	// funcReturnTypes mirrors each `fn name(...) -> type` declaration's
	// first return type by name, the same registry discipline spec.md §3
	// describes for structs, so that a `let`/`let x: T` binding whose
	// initializer is a call can infer (or validate) its type instead of
	// always falling back to unknown.
	funcReturnTypes map[string]DataType
}

// NewParser constructs a parser over tokens, sharing pool and structs with
// the rest of the compile session.
func NewParser(tokens []Token, pool *NodePool, structs *StructRegistry) *Parser {
	return &Parser{
		tokens:          tokens,
		pool:            pool,
		structs:         structs,
		comptimeVals:    make(map[string]int64),
		shadowed:        []map[string]bool{make(map[string]bool)},
		funcReturnTypes: make(map[string]DataType),
	}
}

// Parse returns the root block node: an ordered list of top-level
// statements (spec.md §4.2 "Entry returns a root 'block' node").
func (p *Parser) Parse() (NodeIndex, error) {
	return p.parseBlock()
}

// --- token cursor helpers ---

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekKind() TokenKind {
	return p.tokens[p.pos].Kind
}

func (p *Parser) check(kinds ...TokenKind) bool {
	k := p.peekKind()
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *Parser) expect(kind TokenKind) error {
	if p.peekKind() != kind {
		t := p.peek()
		return parseErrorf(t.Line, t.Col, "expected %s, found %s %q", kind, t.Kind, t.Lexeme)
	}
	p.advance()
	return nil
}

func (p *Parser) curLine() int { return p.peek().Line }
func (p *Parser) curCol() int  { return p.peek().Col }

func (p *Parser) newNode(kind NodeKind) (NodeIndex, error) {
	return p.pool.New(kind)
}

// --- blocks and statements ---

// blockTerminators is the set of tokens that close an enclosing block
// without being consumed by parseBlock itself (spec.md §4.2: "body blocks
// stop at the first end/elif/else boundary").
var blockTerminators = []TokenKind{TokenEnd, TokenElif, TokenElse, TokenEOF}

func (p *Parser) parseBlock() (NodeIndex, error) {
	return p.parseBlockUntil()
}

// parseBlockUntil parses a statement block exactly like parseBlock, but
// also stops at any of extra — used by parseDoWhile, whose body must
// stop at the closing `while` rather than parsing it as the start of a
// nested while loop (spec.md §4.2 "do ... while cond", no `end`).
func (p *Parser) parseBlockUntil(extra ...TokenKind) (NodeIndex, error) {
	idx, err := p.newNode(NodeBlock)
	if err != nil {
		return noNode, err
	}
	p.shadowed = append(p.shadowed, make(map[string]bool))
	defer func() { p.shadowed = p.shadowed[:len(p.shadowed)-1] }()

	var children []NodeIndex
	for !p.check(blockTerminators...) && !p.check(extra...) {
		stmt, err := p.parseStatement()
		if err != nil {
			return noNode, err
		}
		children = append(children, stmt)
		if len(children) > maxChildren {
			return noNode, parseErrorf(p.curLine(), p.curCol(), "block exceeds %d statements", maxChildren)
		}
	}
	p.pool.Get(idx).Children = children
	return idx, nil
}

func (p *Parser) markBound(name string) {
	top := p.shadowed[len(p.shadowed)-1]
	if top[name] {
		logf("note: %q rebinds a name already declared in this block", name)
	}
	top[name] = true
}

func (p *Parser) parseStatement() (NodeIndex, error) {
	switch p.peekKind() {
	case TokenLet:
		return p.parseLet()
	case TokenIdent:
		return p.parseIdentStatement()
	case TokenFn:
		return p.parseFuncDef()
	case TokenStruct:
		return p.parseStructDef()
	case TokenReturn:
		return p.parseReturn()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenDo:
		return p.parseDoWhile()
	case TokenFor:
		return p.parseFor()
	case TokenMatch:
		return p.parseMatch()
	case TokenBreak:
		p.advance()
		return p.newNode(NodeBreak)
	case TokenContinue:
		p.advance()
		return p.newNode(NodeContinue)
	case TokenPrint:
		return p.parsePrint()
	case TokenFree:
		return p.parseFreeStatement()
	case TokenWrite:
		return p.parseWriteStatement()
	case TokenClose:
		return p.parseCloseStatement()
	case TokenDeref:
		return p.parseDerefStatement()
	default:
		t := p.peek()
		return noNode, parseErrorf(t.Line, t.Col, "unexpected %s %q at statement position", t.Kind, t.Lexeme)
	}
}

// parseIdentStatement disambiguates reassignment, array-index write,
// field assignment, tuple destructure assignment and a bare call/
// expression statement, all of which begin with an identifier.
func (p *Parser) parseIdentStatement() (NodeIndex, error) {
	name := p.peek().Lexeme
	save := p.pos
	p.advance()

	switch p.peekKind() {
	case TokenAssign:
		p.advance()
		value, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeReassign)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Name = name
		n.Right = value
		return idx, nil
	case TokenLBracket:
		p.advance()
		index, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRBracket); err != nil {
			return noNode, err
		}
		if err := p.expect(TokenAssign); err != nil {
			return noNode, err
		}
		value, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeArrayIndexWrite)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Name = name
		n.Left = index
		n.Right = value
		return idx, nil
	case TokenDot:
		p.advance()
		field := p.peek()
		if err := p.expect(TokenIdent); err != nil {
			return noNode, err
		}
		if err := p.expect(TokenAssign); err != nil {
			return noNode, err
		}
		value, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeFieldAssign)
		if err != nil {
			return noNode, err
		}
		ident, err := p.identNode(name)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Left = ident
		n.StrVal = field.Lexeme
		n.Right = value
		return idx, nil
	default:
		// A bare expression statement (e.g. a call for side effect).
		p.pos = save
		expr, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		return expr, nil
	}
}

func (p *Parser) identNode(name string) (NodeIndex, error) {
	idx, err := p.newNode(NodeIdent)
	if err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Name = name
	return idx, nil
}

// --- let / array / struct declarations ---

func (p *Parser) parseLet() (NodeIndex, error) {
	p.advance() // 'let'
	first := p.peek()
	if err := p.expect(TokenIdent); err != nil {
		return noNode, err
	}

	if p.check(TokenComma) {
		// tuple destructure: `let a, b = f()`
		p.advance()
		second := p.peek()
		if err := p.expect(TokenIdent); err != nil {
			return noNode, err
		}
		if err := p.expect(TokenAssign); err != nil {
			return noNode, err
		}
		call, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeTupleAssign)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Name = first.Lexeme
		n.StrVal = second.Lexeme
		n.Right = call
		p.markBound(first.Lexeme)
		p.markBound(second.Lexeme)
		return idx, nil
	}

	var declared DataType
	hasDeclared := false
	arraySize := -1
	if p.check(TokenColon) {
		p.advance()
		dt, size, err := p.parseTypeAnnotation()
		if err != nil {
			return noNode, err
		}
		declared = dt
		hasDeclared = true
		arraySize = size
	}

	if err := p.expect(TokenAssign); err != nil {
		return noNode, err
	}

	if arraySize >= 0 {
		return p.parseArrayInitializer(first.Lexeme, declared, arraySize)
	}

	value, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	valueType := p.inferredType(value)
	finalType := valueType
	if hasDeclared {
		coerced, err := p.coerce(declared, valueType, value)
		if err != nil {
			return noNode, err
		}
		finalType = declared
		value = coerced
	}

	idx, err := p.newNode(NodeLet)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Name = first.Lexeme
	n.Right = value
	n.Type = finalType
	p.markBound(first.Lexeme)

	// p.shadowed holds NewParser's base map plus one map per open block, so
	// a length of 2 means this `let` sits directly in the root block.
	if finalType.Kind == TypeInt && len(p.shadowed) == 2 {
		if val, ok := p.literalInt(value); ok {
			p.comptimeVals[first.Lexeme] = val
		}
	}
	return idx, nil
}

// literalInt reports the integer value of value if it is (after folding) a
// bare numeric literal node, for comptime-table mirroring (spec.md §4.2).
func (p *Parser) literalInt(value NodeIndex) (int64, bool) {
	n := p.pool.Get(value)
	if n.Kind == NodeNumber {
		return n.IntVal, true
	}
	return 0, false
}

func (p *Parser) parseArrayInitializer(name string, elemType DataType, size int) (NodeIndex, error) {
	if err := p.expect(TokenLBrace); err != nil {
		return noNode, err
	}
	var values []NodeIndex
	if !p.check(TokenRBrace) {
		for {
			v, err := p.parseComparison()
			if err != nil {
				return noNode, err
			}
			values = append(values, v)
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if err := p.expect(TokenRBrace); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeArrayDecl)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Name = name
	n.Type = elemType
	n.ArraySize = size
	n.Children = values
	p.markBound(name)
	return idx, nil
}

// parseTypeAnnotation parses `type` or `type[N]` after a `:`.
func (p *Parser) parseTypeAnnotation() (DataType, int, error) {
	tok := p.peek()
	if dt, ok := typeNameToDataType(tok.Kind); ok {
		p.advance()
		if p.check(TokenLBracket) {
			p.advance()
			sizeTok := p.peek()
			if err := p.expect(TokenNumber); err != nil {
				return dtUnknown, -1, err
			}
			if err := p.expect(TokenRBracket); err != nil {
				return dtUnknown, -1, err
			}
			return dt, int(parseIntLiteral(sizeTok.Lexeme)), nil
		}
		return dt, -1, nil
	}
	if tok.Kind == TokenIdent {
		if _, ok := p.structs.Lookup(tok.Lexeme); ok {
			p.advance()
			return dtStructOf(tok.Lexeme), -1, nil
		}
		return dtUnknown, -1, parseErrorf(tok.Line, tok.Col, "unknown struct type %q (must be defined before use)", tok.Lexeme)
	}
	return dtUnknown, -1, parseErrorf(tok.Line, tok.Col, "expected a type name, found %s %q", tok.Kind, tok.Lexeme)
}

// inferredType infers a value node's type from its shape, per spec.md
// §4.2 ("If omitted, type is inferred from the initializer").
func (p *Parser) inferredType(idx NodeIndex) DataType {
	n := p.pool.Get(idx)
	switch n.Kind {
	case NodeNumber:
		return dtInt
	case NodeStringLit:
		return dtStr
	case NodeBoolLit:
		return dtBool
	case NodeStructCtor:
		return dtStructOf(n.Name)
	case NodeCall:
		if rt, ok := p.funcReturnTypes[n.Name]; ok {
			return rt
		}
		return dtUnknown
	default:
		return n.Type
	}
}

// coerce validates a declared-type/value-type pairing per spec.md §4.2:
// int->float and int->bool coerce (the conversion itself is emitted at
// codegen time, not reinterpreted here), struct->struct of the same name
// is fine, anything else is a fatal mismatch.
func (p *Parser) coerce(declared, actual DataType, value NodeIndex) (NodeIndex, error) {
	if declared.Kind == actual.Kind && declared.StructName == actual.StructName {
		return value, nil
	}
	switch {
	case declared.Kind == TypeFloat && actual.Kind == TypeInt:
		return value, nil
	case declared.Kind == TypeBool && actual.Kind == TypeInt:
		return value, nil
	default:
		return noNode, parseErrorf(p.curLine(), p.curCol(),
			"type mismatch: cannot bind %s value to %s target", actual, declared)
	}
}

func (p *Parser) parseStructDef() (NodeIndex, error) {
	p.advance() // 'struct'
	nameTok := p.peek()
	if err := p.expect(TokenIdent); err != nil {
		return noNode, err
	}

	var fieldNames []string
	var fieldTypes []DataType
	var fieldNodes []NodeIndex
	for !p.check(TokenEnd) {
		fieldTok := p.peek()
		if err := p.expect(TokenIdent); err != nil {
			return noNode, err
		}
		if err := p.expect(TokenColon); err != nil {
			return noNode, err
		}
		dt, _, err := p.parseTypeAnnotation()
		if err != nil {
			return noNode, err
		}
		fieldNames = append(fieldNames, fieldTok.Lexeme)
		fieldTypes = append(fieldTypes, dt)

		fn, err := p.newNode(NodeStructField)
		if err != nil {
			return noNode, err
		}
		fnode := p.pool.Get(fn)
		fnode.Name = fieldTok.Lexeme
		fnode.Type = dt
		fieldNodes = append(fieldNodes, fn)
	}
	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}

	if _, err := p.structs.Define(nameTok.Lexeme, fieldNames, fieldTypes); err != nil {
		return noNode, err
	}

	idx, err := p.newNode(NodeStructDef)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Name = nameTok.Lexeme
	n.Children = fieldNodes
	return idx, nil
}

// --- functions ---

func (p *Parser) parseFuncDef() (NodeIndex, error) {
	p.advance() // 'fn'
	nameTok := p.peek()
	if err := p.expect(TokenIdent); err != nil {
		return noNode, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return noNode, err
	}

	var params []NodeIndex
	if !p.check(TokenRParen) {
		for {
			pTok := p.peek()
			if err := p.expect(TokenIdent); err != nil {
				return noNode, err
			}
			if err := p.expect(TokenColon); err != nil {
				return noNode, err
			}
			dt, _, err := p.parseTypeAnnotation()
			if err != nil {
				return noNode, err
			}
			pn, err := p.newNode(NodeParam)
			if err != nil {
				return noNode, err
			}
			node := p.pool.Get(pn)
			node.Name = pTok.Lexeme
			node.Type = dt
			params = append(params, pn)
			if len(params) > maxParams {
				return noNode, parseErrorf(pTok.Line, pTok.Col, "function exceeds %d parameters", maxParams)
			}
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if err := p.expect(TokenRParen); err != nil {
		return noNode, err
	}

	retType := dtUnknown
	if p.check(TokenArrow) {
		p.advance()
		dt, _, err := p.parseTypeAnnotation()
		if err != nil {
			return noNode, err
		}
		retType = dt
		// A tuple return type names two comma-separated types; only the
		// first is remembered (spec.md §4.2 "Functions") — the tuple shape
		// itself is inferred at each call/return/destructure site.
		if p.check(TokenComma) {
			p.advance()
			if _, _, err := p.parseTypeAnnotation(); err != nil {
				return noNode, err
			}
		}
	}

	// Registered before the body is parsed, mirroring the struct registry
	// (spec.md §3): a recursive call inside this function's own body then
	// resolves its return type the same way a forward-visible struct
	// would, rather than always falling back to unknown.
	p.funcReturnTypes[nameTok.Lexeme] = retType

	body, err := p.parseBlock()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}

	idx, err := p.newNode(NodeFuncDef)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Name = nameTok.Lexeme
	n.Children = params
	n.Body = body
	n.Type = retType
	return idx, nil
}

func (p *Parser) parseReturn() (NodeIndex, error) {
	p.advance() // 'return'
	if p.check(blockTerminators...) {
		return p.newNode(NodeReturn)
	}
	first, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if p.check(TokenComma) {
		p.advance()
		second, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeTupleReturn)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Left = first
		n.Right = second
		return idx, nil
	}
	idx, err := p.newNode(NodeReturn)
	if err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Right = first
	return idx, nil
}

// --- control flow ---

func (p *Parser) parseIf() (NodeIndex, error) {
	idx, err := p.newNode(NodeIf)
	if err != nil {
		return noNode, err
	}
	var branches []NodeIndex

	p.advance() // 'if'
	cond, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return noNode, err
	}
	br, err := p.newNode(NodeIfBranch)
	if err != nil {
		return noNode, err
	}
	bn := p.pool.Get(br)
	bn.Left = cond
	bn.Body = body
	branches = append(branches, br)

	for p.check(TokenElif) {
		p.advance()
		cond, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return noNode, err
		}
		br, err := p.newNode(NodeIfBranch)
		if err != nil {
			return noNode, err
		}
		bn := p.pool.Get(br)
		bn.Left = cond
		bn.Body = body
		branches = append(branches, br)
	}

	if p.check(TokenElse) {
		p.advance()
		body, err := p.parseBlock()
		if err != nil {
			return noNode, err
		}
		br, err := p.newNode(NodeIfBranch)
		if err != nil {
			return noNode, err
		}
		bn := p.pool.Get(br)
		bn.Left = noNode
		bn.Body = body
		branches = append(branches, br)
	}

	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Children = branches
	return idx, nil
}

func (p *Parser) parseWhile() (NodeIndex, error) {
	p.advance() // 'while'
	cond, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeWhile)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Left = cond
	n.Body = body
	return idx, nil
}

// parseDoWhile parses `do ... while cond` — no `end`; the `while` closes
// the body (spec.md §4.2).
func (p *Parser) parseDoWhile() (NodeIndex, error) {
	p.advance() // 'do'
	body, err := p.parseBlockUntil(TokenWhile)
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenWhile); err != nil {
		return noNode, err
	}
	cond, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeDoWhile)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Body = body
	n.Left = cond
	return idx, nil
}

// parseFor parses `for i = start to limit [step e] [where cond] ... end`.
// An omitted step defaults to 1 (spec.md §4.2).
func (p *Parser) parseFor() (NodeIndex, error) {
	p.advance() // 'for'
	nameTok := p.peek()
	if err := p.expect(TokenIdent); err != nil {
		return noNode, err
	}
	if err := p.expect(TokenAssign); err != nil {
		return noNode, err
	}
	start, err := p.parseAdditive()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenTo); err != nil {
		return noNode, err
	}
	limit, err := p.parseAdditive()
	if err != nil {
		return noNode, err
	}

	step := noNode
	if p.check(TokenStep) {
		p.advance()
		step, err = p.parseAdditive()
		if err != nil {
			return noNode, err
		}
	} else {
		one, err := p.newNode(NodeNumber)
		if err != nil {
			return noNode, err
		}
		p.pool.Get(one).IntVal = 1
		step = one
	}

	filter := noNode
	if p.check(TokenWhere) {
		p.advance()
		filter, err = p.parseComparison()
		if err != nil {
			return noNode, err
		}
	}

	p.markBound(nameTok.Lexeme)
	body, err := p.parseBlock()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}

	idx, err := p.newNode(NodeFor)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Name = nameTok.Lexeme
	n.Start = start
	n.Limit = limit
	n.Step = step
	n.Filter = filter
	n.Body = body
	return idx, nil
}

func (p *Parser) parseMatch() (NodeIndex, error) {
	p.advance() // 'match'
	subject, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	var cases []NodeIndex
	for !p.check(TokenEnd) {
		caseVal := noNode
		if p.check(TokenElse) {
			p.advance()
		} else {
			val, err := p.parseComparison()
			if err != nil {
				return noNode, err
			}
			caseVal = val
		}
		if err := p.expect(TokenArrow); err != nil {
			return noNode, err
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return noNode, err
		}

		// cn is allocated only after caseVal/stmt's own sub-parses have run
		// their course: p.pool.New grows the arena's backing slice, which
		// would invalidate any *Node obtained before those allocations
		// (spec.md §9 "arena-and-index rather than shared mutable
		// pointers" — the same discipline parseIf/parseFor follow).
		cn, err := p.newNode(NodeMatchCase)
		if err != nil {
			return noNode, err
		}
		cnode := p.pool.Get(cn)
		cnode.Left = caseVal
		cnode.Body = stmt
		cases = append(cases, cn)
	}
	if err := p.expect(TokenEnd); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeMatch)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Left = subject
	n.Children = cases
	return idx, nil
}

// --- builtins with statement forms ---

func (p *Parser) parsePrint() (NodeIndex, error) {
	p.advance() // 'print'
	if err := p.expect(TokenLParen); err != nil {
		return noNode, err
	}
	arg, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodePrint)
	if err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Right = arg
	return idx, nil
}

func (p *Parser) parseFreeStatement() (NodeIndex, error) {
	p.advance() // 'free'
	if err := p.expect(TokenLParen); err != nil {
		return noNode, err
	}
	ptr, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenComma); err != nil {
		return noNode, err
	}
	size, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeFree)
	if err != nil {
		return noNode, err
	}
	n := p.pool.Get(idx)
	n.Left = ptr
	n.Right = size
	return idx, nil
}

func (p *Parser) parseWriteStatement() (NodeIndex, error) {
	p.advance() // 'write'
	args, err := p.parseCallArgs()
	if err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeWriteCall)
	if err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Children = args
	return idx, nil
}

func (p *Parser) parseCloseStatement() (NodeIndex, error) {
	p.advance() // 'close'
	if err := p.expect(TokenLParen); err != nil {
		return noNode, err
	}
	fd, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return noNode, err
	}
	idx, err := p.newNode(NodeCloseCall)
	if err != nil {
		return noNode, err
	}
	p.pool.Get(idx).Left = fd
	return idx, nil
}

// parseDerefStatement disambiguates `deref(x) = value` (a store through a
// pointer, statement position) from a bare `deref(x)` read used as an
// expression statement.
func (p *Parser) parseDerefStatement() (NodeIndex, error) {
	expr, err := p.parseComparison()
	if err != nil {
		return noNode, err
	}
	if p.check(TokenAssign) {
		derefNode := p.pool.Get(expr)
		if derefNode.Kind != NodeDerefRead {
			return noNode, parseErrorf(p.curLine(), p.curCol(), "invalid assignment target")
		}
		p.advance()
		value, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeDerefWrite)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Left = derefNode.Right
		n.Right = value
		return idx, nil
	}
	return expr, nil
}

// --- expression grammar ---

// parseComparison implements spec.md §4.2's comparison level: at most one
// relational operator between additive expressions, followed by zero or
// more and/or (right-associative, short-circuit).
func (p *Parser) parseComparison() (NodeIndex, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return noNode, err
	}

	if op, ok := comparatorOp(p.peekKind()); ok {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeBinary)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Op = op
		n.Left = left
		n.Right = right
		n.Type = dtBool
		left = idx
	}

	for p.check(TokenAnd) || p.check(TokenOr) {
		isAnd := p.peekKind() == TokenAnd
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		kind := NodeOr
		if isAnd {
			kind = NodeAnd
		}
		idx, err := p.newNode(kind)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Left = left
		n.Right = right
		n.Type = dtBool
		left = idx
	}
	return left, nil
}

func comparatorOp(k TokenKind) (string, bool) {
	switch k {
	case TokenGt:
		return ">", true
	case TokenLt:
		return "<", true
	case TokenEq:
		return "==", true
	case TokenNeq:
		return "!=", true
	case TokenGe:
		return ">=", true
	case TokenLe:
		return "<=", true
	default:
		return "", false
	}
}

func (p *Parser) parseAdditive() (NodeIndex, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return noNode, err
	}
	for p.check(TokenPlus) || p.check(TokenMinus) {
		op := "+"
		if p.peekKind() == TokenMinus {
			op = "-"
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeBinary)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Op = op
		n.Left = left
		n.Right = right
		left = idx
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (NodeIndex, error) {
	left, err := p.parseUnary()
	if err != nil {
		return noNode, err
	}
	for p.check(TokenStar) || p.check(TokenSlash) {
		op := "*"
		if p.peekKind() == TokenSlash {
			op = "/"
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeBinary)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Op = op
		n.Left = left
		n.Right = right
		left = idx
	}
	return left, nil
}

func (p *Parser) parseUnary() (NodeIndex, error) {
	if p.check(TokenMinus) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeNeg)
		if err != nil {
			return noNode, err
		}
		p.pool.Get(idx).Right = operand
		return idx, nil
	}
	return p.parsePrimary()
}

// parseCallArgs parses a parenthesized, comma-separated argument list.
func (p *Parser) parseCallArgs() ([]NodeIndex, error) {
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var args []NodeIndex
	if !p.check(TokenRParen) {
		for {
			arg, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (NodeIndex, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenNumber:
		p.advance()
		idx, err := p.newNode(NodeNumber)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.IntVal = parseIntLiteral(tok.Lexeme)
		n.Type = dtInt
		return idx, nil
	case TokenTrue, TokenFalse:
		p.advance()
		idx, err := p.newNode(NodeBoolLit)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		if tok.Kind == TokenTrue {
			n.IntVal = 1
		}
		n.Type = dtBool
		return idx, nil
	case TokenString:
		p.advance()
		idx, err := p.newNode(NodeStringLit)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.StrVal = tok.Lexeme
		n.Type = dtStr
		return idx, nil
	case TokenComptime:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		val, err := p.parseComptimeExpr()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeNumber)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.IntVal = val
		n.Type = dtInt
		return idx, nil
	case TokenAddr:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		target := p.peek()
		if err := p.expect(TokenIdent); err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		ident, err := p.identNode(target.Lexeme)
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeAddr)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Right = ident
		n.Type = dtPtr
		return idx, nil
	case TokenDeref:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		ptr, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeDerefRead)
		if err != nil {
			return noNode, err
		}
		p.pool.Get(idx).Right = ptr
		return idx, nil
	case TokenAlloc:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		size, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeAlloc)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Right = size
		n.Type = dtPtr
		return idx, nil
	case TokenOpen:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		path, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenComma); err != nil {
			return noNode, err
		}
		flags, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeOpenCall)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Left = path
		n.Right = flags
		n.Type = dtInt
		return idx, nil
	case TokenRead:
		p.advance()
		args, err := p.parseCallArgs()
		if err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeReadCall)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Children = args
		n.Type = dtInt
		return idx, nil
	case TokenStrlen:
		p.advance()
		if err := p.expect(TokenLParen); err != nil {
			return noNode, err
		}
		s, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		idx, err := p.newNode(NodeStrlen)
		if err != nil {
			return noNode, err
		}
		n := p.pool.Get(idx)
		n.Right = s
		n.Type = dtInt
		return idx, nil
	case TokenLParen:
		p.advance()
		inner, err := p.parseComparison()
		if err != nil {
			return noNode, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return noNode, err
		}
		return inner, nil
	case TokenIdent:
		return p.parsePrimaryIdent()
	default:
		return noNode, parseErrorf(tok.Line, tok.Col, "unexpected %s %q in expression", tok.Kind, tok.Lexeme)
	}
}

// parsePrimaryIdent handles every postfix form that can follow a bare
// identifier: a struct constructor call, a function call, an array index
// read, a field read, or a plain identifier reference — chained so that
// `p.next.x` and `a[i]` compose naturally.
func (p *Parser) parsePrimaryIdent() (NodeIndex, error) {
	tok := p.peek()
	p.advance()
	name := tok.Lexeme

	var base NodeIndex
	var err error
	switch {
	case p.check(TokenLParen):
		if _, isStruct := p.structs.Lookup(name); isStruct {
			args, err2 := p.parseCallArgs()
			if err2 != nil {
				return noNode, err2
			}
			idx, err2 := p.newNode(NodeStructCtor)
			if err2 != nil {
				return noNode, err2
			}
			n := p.pool.Get(idx)
			n.Name = name
			n.Children = args
			n.Type = dtStructOf(name)
			base = idx
		} else {
			args, err2 := p.parseCallArgs()
			if err2 != nil {
				return noNode, err2
			}
			idx, err2 := p.newNode(NodeCall)
			if err2 != nil {
				return noNode, err2
			}
			n := p.pool.Get(idx)
			n.Name = name
			n.Children = args
			base = idx
		}
	default:
		base, err = p.identNode(name)
		if err != nil {
			return noNode, err
		}
	}

	for {
		switch {
		case p.check(TokenLBracket):
			p.advance()
			index, err2 := p.parseComparison()
			if err2 != nil {
				return noNode, err2
			}
			if err2 := p.expect(TokenRBracket); err2 != nil {
				return noNode, err2
			}
			idx, err2 := p.newNode(NodeArrayIndexRead)
			if err2 != nil {
				return noNode, err2
			}
			n := p.pool.Get(idx)
			n.Left = base
			n.Right = index
			base = idx
		case p.check(TokenDot):
			p.advance()
			field := p.peek()
			if err2 := p.expect(TokenIdent); err2 != nil {
				return noNode, err2
			}
			idx, err2 := p.newNode(NodeFieldRead)
			if err2 != nil {
				return noNode, err2
			}
			n := p.pool.Get(idx)
			n.Left = base
			n.StrVal = field.Lexeme
			base = idx
		default:
			return base, nil
		}
	}
}

