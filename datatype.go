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

// DataTypeKind is the closed set of value shapes the language has (spec.md
// §3). A struct-typed value also carries the struct's name.
type DataTypeKind int

const (
	TypeUnknown DataTypeKind = iota
	TypeInt
	TypeFloat
	TypeStr
	TypePtr
	TypeBool
	TypeStruct
)

func (k DataTypeKind) String() string {
	switch k {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "str"
	case TypePtr:
		return "ptr"
	case TypeBool:
		return "bool"
	case TypeStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// DataType is a resolved value type: a kind plus, for TypeStruct, the name
// of the struct definition it is parametrized by.
type DataType struct {
	Kind       DataTypeKind
	StructName string
}

func (t DataType) String() string {
	if t.Kind == TypeStruct {
		return fmt.Sprintf("struct %s", t.StructName)
	}
	return t.Kind.String()
}

func (t DataType) Size() int {
	if t.Kind == TypeBool {
		return 1
	}
	return 8
}

var (
	dtUnknown = DataType{Kind: TypeUnknown}
	dtInt     = DataType{Kind: TypeInt}
	dtFloat   = DataType{Kind: TypeFloat}
	dtStr     = DataType{Kind: TypeStr}
	dtPtr     = DataType{Kind: TypePtr}
	dtBool    = DataType{Kind: TypeBool}
)

func dtStructOf(name string) DataType { return DataType{Kind: TypeStruct, StructName: name} }

// typeNameToDataType maps a parsed type-name token's lexeme to a DataType,
// used when a `: type` annotation names a builtin; struct types are
// resolved separately via the struct registry since they are identifiers,
// not keywords.
func typeNameToDataType(kind TokenKind) (DataType, bool) {
	switch kind {
	case TokenTypeInt:
		return dtInt, true
	case TokenTypeFloat:
		return dtFloat, true
	case TokenTypeStr:
		return dtStr, true
	case TokenTypePtr:
		return dtPtr, true
	case TokenTypeBool:
		return dtBool, true
	default:
		return dtUnknown, false
	}
}
