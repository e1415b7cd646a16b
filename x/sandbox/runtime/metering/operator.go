// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"fmt"
	"sort"
)

// Operator identifies a single WebAssembly instruction.
type Operator uint16

// Category groups operators for coarse grained pricing.
type Category uint8

const (
	CategoryControl Category = iota
	CategoryParametric
	CategoryVariable
	CategoryTable
	CategoryMemory
	CategoryConstant
	CategoryNumeric
	CategoryConversion
	CategoryReference

	numCategories
)

// prefixMisc is the leading byte of the saturating truncation, bulk memory and
// table instructions.
const prefixMisc = 0xFC

var categoryNames = [numCategories]string{
	CategoryControl:    "control",
	CategoryParametric: "parametric",
	CategoryVariable:   "variable",
	CategoryTable:      "table",
	CategoryMemory:     "memory",
	CategoryConstant:   "constant",
	CategoryNumeric:    "numeric",
	CategoryConversion: "conversion",
	CategoryReference:  "reference",
}

type operatorInfo struct {
	name     string
	category Category
}

var (
	operatorsByName = map[string][]Operator{}
	allOperators    []Operator
)

func init() {
	for op, info := range operatorTable {
		operatorsByName[info.name] = append(operatorsByName[info.name], op)
		allOperators = append(allOperators, op)
	}
	sort.Slice(allOperators, func(i, j int) bool { return allOperators[i] < allOperators[j] })
	for _, ops := range operatorsByName {
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	}
}

func (o Operator) String() string {
	if info, ok := operatorTable[o]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown(0x%x)", uint16(o))
}

// Valid reports whether o is an operator known to the decoder.
func (o Operator) Valid() bool {
	_, ok := operatorTable[o]
	return ok
}

// Category returns the category o belongs to.
func (o Operator) Category() Category {
	return operatorTable[o].category
}

func (c Category) String() string {
	if c < numCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Operators returns every known operator in encoding order.
func Operators() []Operator {
	return append([]Operator(nil), allOperators...)
}

// Categories returns every operator category.
func Categories() []Category {
	categories := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		categories = append(categories, c)
	}
	return categories
}

// OperatorsByName returns the operators spelled name in the text format.
// "select" resolves to both the untyped and typed encodings.
func OperatorsByName(name string) ([]Operator, bool) {
	ops, ok := operatorsByName[name]
	return ops, ok
}

// CategoryByName resolves a category name such as "numeric".
func CategoryByName(name string) (Category, bool) {
	for c, n := range categoryNames {
		if n == name {
			return Category(c), true
		}
	}
	return 0, false
}

// endsBlock reports whether control may leave the straight-line sequence after o.
func endsBlock(o Operator) bool {
	switch o {
	case OpUnreachable, OpLoop, OpIf, OpElse, OpEnd,
		OpBr, OpBrIf, OpBrTable, OpReturn,
		OpCall, OpCallIndirect, OpReturnCall, OpReturnCallIndirect:
		return true
	default:
		return false
	}
}
