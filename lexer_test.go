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

import "testing"

func lexKinds(t *testing.T, src string) []TokenKind {
	t.Helper()
	toks, err := NewLexer([]byte(src)).Lex()
	if err != nil {
		t.Fatalf("Lex(%q): %v", src, err)
	}
	kinds := make([]TokenKind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	return kinds
}

func TestLex_Keywords(t *testing.T) {
	kinds := lexKinds(t, "let fn return if elif else while for do to step end print true false match comptime struct")
	want := []TokenKind{
		TokenLet, TokenFn, TokenReturn, TokenIf, TokenElif, TokenElse, TokenWhile,
		TokenFor, TokenDo, TokenTo, TokenStep, TokenEnd, TokenPrint, TokenTrue,
		TokenFalse, TokenMatch, TokenComptime, TokenStruct, TokenEOF,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("token %d: got %v, want %v", i, kinds[i], k)
		}
	}
}

func TestLex_IdentifierNotKeyword(t *testing.T) {
	toks, err := NewLexer([]byte("letter")).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != TokenIdent || toks[0].Lexeme != "letter" {
		t.Fatalf("got %+v, want identifier %q", toks[0], "letter")
	}
}

func TestLex_TwoCharOperatorsBeforePrefixes(t *testing.T) {
	tests := []struct {
		src  string
		want []TokenKind
	}{
		{"==", []TokenKind{TokenEq}},
		{"!=", []TokenKind{TokenNeq}},
		{">=", []TokenKind{TokenGe}},
		{"<=", []TokenKind{TokenLe}},
		{"->", []TokenKind{TokenArrow}},
		{"=", []TokenKind{TokenAssign}},
		{"<", []TokenKind{TokenLt}},
		{">", []TokenKind{TokenGt}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			kinds := lexKinds(t, tt.src)
			if len(kinds) != len(tt.want)+1 {
				t.Fatalf("got %v", kinds)
			}
			for i, k := range tt.want {
				if kinds[i] != k {
					t.Errorf("got %v, want %v", kinds[i], k)
				}
			}
		})
	}
}

func TestLex_NumberAndString(t *testing.T) {
	toks, err := NewLexer([]byte(`42 "hello"`)).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != TokenNumber || toks[0].Lexeme != "42" {
		t.Fatalf("got %+v", toks[0])
	}
	if toks[1].Kind != TokenString || toks[1].Lexeme != "hello" {
		t.Fatalf("got %+v", toks[1])
	}
}

func TestLex_UnterminatedStringReadsToEOF(t *testing.T) {
	toks, err := NewLexer([]byte(`"unterminated`)).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != TokenString || toks[0].Lexeme != "unterminated" {
		t.Fatalf("got %+v, want tolerant read-to-EOF", toks[0])
	}
}

func TestLex_NoEscapeProcessing(t *testing.T) {
	toks, err := NewLexer([]byte(`"a\nb"`)).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Lexeme != `a\nb` {
		t.Fatalf("got %q, want literal backslash-n preserved", toks[0].Lexeme)
	}
}

func TestLex_CommentsSkippedToEndOfLine(t *testing.T) {
	kinds := lexKinds(t, "let x = 1 # trailing comment\nlet y = 2")
	count := 0
	for _, k := range kinds {
		if k == TokenLet {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("got %d 'let' tokens, want 2 (comment should not have produced tokens): %v", count, kinds)
	}
}

func TestLex_UnknownCharacterIsFatal(t *testing.T) {
	_, err := NewLexer([]byte("let x = 1 @ 2")).Lex()
	if err == nil {
		t.Fatal("expected an error for an unknown character")
	}
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("got %T, want *CompileError", err)
	}
	if ce.Stage != StageLex {
		t.Fatalf("got stage %v, want StageLex", ce.Stage)
	}
}

func TestLex_LexemeTruncatedAtMaxTokenLexeme(t *testing.T) {
	long := make([]byte, maxTokenLexeme+50)
	for i := range long {
		long[i] = 'a'
	}
	toks, err := NewLexer(long).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if len(toks[0].Lexeme) != maxTokenLexeme {
		t.Fatalf("got lexeme length %d, want %d", len(toks[0].Lexeme), maxTokenLexeme)
	}
}

func TestLex_AlwaysTerminatesWithEOF(t *testing.T) {
	toks, err := NewLexer([]byte("")).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 1 || toks[0].Kind != TokenEOF {
		t.Fatalf("got %+v, want a single EOF token for empty input", toks)
	}
}

func TestLex_PositionTracking(t *testing.T) {
	toks, err := NewLexer([]byte("let\nx")).Lex()
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Line != 1 {
		t.Fatalf("got line %d, want 1", toks[0].Line)
	}
	if toks[1].Line != 2 {
		t.Fatalf("got line %d, want 2", toks[1].Line)
	}
}
