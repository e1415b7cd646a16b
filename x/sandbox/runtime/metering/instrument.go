// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"errors"
	"fmt"
	"math"
)

const (
	// RemainingPointsExport names the mutable i64 global holding the ledger.
	RemainingPointsExport = "metering_remaining_points"
	// PointsExhaustedExport names the mutable i32 global set to 1 when a
	// block could not be paid for.
	PointsExhaustedExport = "metering_points_exhausted"
)

var (
	ErrNilCostModel      = errors.New("nil cost model")
	ErrNegativeBudget    = errors.New("budget must not be negative")
	ErrReservedExport    = errors.New("export name is reserved for metering")
	ErrHiddenGlobal      = errors.New("global index out of range")
	ErrBlockCostOverflow = errors.New("block cost overflows int64")
)

// Pass rewrites a module so that every straight-line block pays its cost
// from an exported points global before it runs.
type Pass struct {
	Costs  CostModel
	Budget int64
}

type meteringGlobals struct {
	count     uint32
	remaining uint32
	exhausted uint32
}

// Apply returns the instrumented module. m is not modified.
func (p Pass) Apply(m *Module) (*Module, error) {
	if p.Costs == nil {
		return nil, ErrNilCostModel
	}
	if p.Budget < 0 {
		return nil, ErrNegativeBudget
	}

	count := m.GlobalCount()
	if uint64(count) > math.MaxUint32-2 {
		return nil, fmt.Errorf("%w: %d globals", ErrHiddenGlobal, count)
	}
	g := meteringGlobals{
		count:     uint32(count),
		remaining: uint32(count),
		exhausted: uint32(count) + 1,
	}
	for _, e := range m.Exports {
		if e.Name == RemainingPointsExport || e.Name == PointsExhaustedExport {
			return nil, fmt.Errorf("%w: %q", ErrReservedExport, e.Name)
		}
		if e.Kind == ExternalGlobal && e.Index >= g.count {
			return nil, fmt.Errorf("%w: export %q of global %d", ErrHiddenGlobal, e.Name, e.Index)
		}
	}

	code, err := p.instrumentCode(m, g)
	if err != nil {
		return nil, err
	}

	globals := appendU32(nil, uint32(len(m.Globals)+2))
	globals = append(globals, m.globalEntries...)
	globals = append(globals, valueTypeI64, 1, byte(OpI64Const))
	globals = appendS64(globals, p.Budget)
	globals = append(globals, byte(OpEnd))
	globals = append(globals, valueTypeI32, 1, byte(OpI32Const), 0, byte(OpEnd))

	exports := appendU32(nil, uint32(len(m.Exports)+2))
	exports = append(exports, m.exportEntries...)
	exports = appendName(exports, RemainingPointsExport)
	exports = append(exports, byte(ExternalGlobal))
	exports = appendU32(exports, g.remaining)
	exports = appendName(exports, PointsExhaustedExport)
	exports = append(exports, byte(ExternalGlobal))
	exports = appendU32(exports, g.exhausted)

	var (
		sections     = make([]Section, 0, len(m.Sections)+2)
		globalPlaced bool
		exportPlaced bool
	)
	place := func(id SectionID) {
		if !globalPlaced && sectionRank[id] > sectionRank[SectionGlobal] {
			sections = append(sections, Section{ID: SectionGlobal, Payload: globals})
			globalPlaced = true
		}
		if !exportPlaced && sectionRank[id] > sectionRank[SectionExport] {
			sections = append(sections, Section{ID: SectionExport, Payload: exports})
			exportPlaced = true
		}
	}
	for _, s := range m.Sections {
		if s.ID != SectionCustom {
			place(s.ID)
		}
		switch s.ID {
		case SectionGlobal:
			sections = append(sections, Section{ID: SectionGlobal, Payload: globals})
			globalPlaced = true
		case SectionExport:
			sections = append(sections, Section{ID: SectionExport, Payload: exports})
			exportPlaced = true
		case SectionCode:
			sections = append(sections, Section{ID: SectionCode, Payload: code})
		default:
			sections = append(sections, s)
		}
	}
	if !globalPlaced {
		sections = append(sections, Section{ID: SectionGlobal, Payload: globals})
	}
	if !exportPlaced {
		sections = append(sections, Section{ID: SectionExport, Payload: exports})
	}
	return Parse(encodeModule(sections))
}

func (p Pass) instrumentCode(m *Module, g meteringGlobals) ([]byte, error) {
	out := appendU32(nil, uint32(len(m.Functions)))
	for i := range m.Functions {
		body, err := p.instrumentFunction(&m.Functions[i], g)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", m.ImportedFunctions()+i, err)
		}
		out = appendU32(out, uint32(len(body)))
		out = append(out, body...)
	}
	return out, nil
}

func (p Pass) instrumentFunction(fn *Function, g meteringGlobals) ([]byte, error) {
	out := make([]byte, 0, len(fn.Locals)+2*len(fn.Body))
	out = append(out, fn.Locals...)

	var (
		start int
		cost  uint64
	)
	for i, ins := range fn.Instructions {
		if (ins.Op == OpGlobalGet || ins.Op == OpGlobalSet) && ins.Index >= g.count {
			return nil, fmt.Errorf("%w: %s %d", ErrHiddenGlobal, ins.Op, ins.Index)
		}
		c := p.Costs.Cost(ins.Op)
		if c > math.MaxInt64-cost {
			return nil, ErrBlockCostOverflow
		}
		cost += c
		if !endsBlock(ins.Op) && i != len(fn.Instructions)-1 {
			continue
		}
		out = appendCharge(out, int64(cost), g)
		out = append(out, fn.Body[fn.Instructions[start].Offset:ins.End]...)
		start = i + 1
		cost = 0
	}
	return out, nil
}

// appendCharge emits
//
//	global.get $remaining
//	i64.const cost
//	i64.lt_s
//	if
//	  i32.const 1
//	  global.set $exhausted
//	  unreachable
//	end
//	global.get $remaining
//	i64.const cost
//	i64.sub
//	global.set $remaining
//
// The subtraction is dropped for free blocks but the check is not, so a
// negative ledger always faults.
func appendCharge(b []byte, cost int64, g meteringGlobals) []byte {
	b = append(b, byte(OpGlobalGet))
	b = appendU32(b, g.remaining)
	b = append(b, byte(OpI64Const))
	b = appendS64(b, cost)
	b = append(b, byte(OpI64LtS), byte(OpIf), blockTypeEmpty, byte(OpI32Const), 1, byte(OpGlobalSet))
	b = appendU32(b, g.exhausted)
	b = append(b, byte(OpUnreachable), byte(OpEnd))
	if cost == 0 {
		return b
	}
	b = append(b, byte(OpGlobalGet))
	b = appendU32(b, g.remaining)
	b = append(b, byte(OpI64Const))
	b = appendS64(b, cost)
	b = append(b, byte(OpI64Sub), byte(OpGlobalSet))
	return appendU32(b, g.remaining)
}
