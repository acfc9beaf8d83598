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

func TestTokenKind_StringNamesEveryKeyword(t *testing.T) {
	for text, kind := range keywords {
		got := kind.String()
		want := "'" + text + "'"
		if got != want {
			t.Errorf("%v.String() = %q, want %q", kind, got, want)
		}
	}
}

func TestTokenKind_StringKnownSentinels(t *testing.T) {
	tests := []struct {
		kind TokenKind
		want string
	}{
		{TokenEOF, "end of input"},
		{TokenNumber, "number"},
		{TokenIdent, "identifier"},
		{TokenString, "string"},
		{TokenEq, "'=='"},
		{TokenArrow, "'->'"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
