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

func TestDataType_StringRendersStructNameForStructKind(t *testing.T) {
	got := dtStructOf("Point").String()
	if got != "struct Point" {
		t.Fatalf("got %q, want %q", got, "struct Point")
	}
	if dtInt.String() != "int" {
		t.Fatalf("got %q, want %q", dtInt.String(), "int")
	}
}

func TestDataType_SizeIsOneByteForBoolEightOtherwise(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		want int
	}{
		{"bool", dtBool, 1},
		{"int", dtInt, 8},
		{"float", dtFloat, 8},
		{"str", dtStr, 8},
		{"ptr", dtPtr, 8},
		{"struct", dtStructOf("Point"), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dt.Size(); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTypeNameToDataType_MapsBuiltinKeywordsOnly(t *testing.T) {
	tests := []struct {
		tok  TokenKind
		want DataType
		ok   bool
	}{
		{TokenTypeInt, dtInt, true},
		{TokenTypeFloat, dtFloat, true},
		{TokenTypeStr, dtStr, true},
		{TokenTypePtr, dtPtr, true},
		{TokenTypeBool, dtBool, true},
		{TokenIdent, dtUnknown, false},
	}
	for _, tt := range tests {
		got, ok := typeNameToDataType(tt.tok)
		if ok != tt.ok || got != tt.want {
			t.Errorf("typeNameToDataType(%v) = %v, %v; want %v, %v", tt.tok, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDataTypeKind_StringCoversUnknownDefault(t *testing.T) {
	if got := DataTypeKind(99).String(); got != "unknown" {
		t.Fatalf("got %q, want %q for an out-of-range kind", got, "unknown")
	}
}
