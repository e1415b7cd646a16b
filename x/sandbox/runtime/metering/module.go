// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic       = errors.New("invalid wasm magic number")
	ErrUnsupportedVersion = errors.New("unsupported wasm binary version")
	ErrSectionOrder       = errors.New("section out of order or duplicated")
	ErrUnknownSection     = errors.New("unknown section id")
	ErrMalformedSection   = errors.New("malformed section")
	ErrTrailingBytes      = errors.New("trailing bytes after expression")
	ErrFunctionCount      = errors.New("function and code section counts differ")
	ErrUnsupportedFeature = errors.New("unsupported wasm feature")
	ErrTooManyLocals      = errors.New("too many locals")
)

const (
	wasmMagic   = "\x00asm"
	wasmVersion = 1

	// maxLocals matches the per-function limit the engines enforce.
	maxLocals = 50_000

	blockTypeEmpty = 0x40

	valueTypeI32       = 0x7F
	valueTypeI64       = 0x7E
	valueTypeF32       = 0x7D
	valueTypeF64       = 0x7C
	valueTypeV128      = 0x7B
	valueTypeFuncref   = 0x70
	valueTypeExternref = 0x6F
)

type SectionID byte

const (
	SectionCustom SectionID = iota
	SectionType
	SectionImport
	SectionFunction
	SectionTable
	SectionMemory
	SectionGlobal
	SectionExport
	SectionStart
	SectionElement
	SectionCode
	SectionData
	SectionDataCount
	SectionTag
)

// sectionRank orders non-custom sections as the binary format requires.
var sectionRank = map[SectionID]int{
	SectionType:      1,
	SectionImport:    2,
	SectionFunction:  3,
	SectionTable:     4,
	SectionMemory:    5,
	SectionTag:       6,
	SectionGlobal:    7,
	SectionExport:    8,
	SectionStart:     9,
	SectionElement:   10,
	SectionDataCount: 11,
	SectionCode:      12,
	SectionData:      13,
}

type ExternalKind byte

const (
	ExternalFunction ExternalKind = iota
	ExternalTable
	ExternalMemory
	ExternalGlobal
	ExternalTag
)

func (k ExternalKind) String() string {
	switch k {
	case ExternalFunction:
		return "func"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	case ExternalTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

type Section struct {
	ID      SectionID
	Payload []byte
}

// Limits bounds a memory (in 64 KiB pages) or a table (in elements).
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

type TableType struct {
	ElemType byte
	Limits   Limits
}

type GlobalType struct {
	ValueType byte
	Mutable   bool
}

type Import struct {
	Module string
	Name   string
	Kind   ExternalKind
	// TypeIndex is set for function imports.
	TypeIndex uint32
	Table     TableType
	Memory    Limits
	Global    GlobalType
}

type Global struct {
	Type GlobalType
	Init []byte
}

type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// Instruction is one decoded instruction of a function body. Offset and End
// delimit its encoding within Function.Body.
type Instruction struct {
	Op     Operator
	Offset int
	End    int
	// Index is the first index immediate (local, global, function, label,
	// type, table, memory, data or element) when the operator has one.
	Index uint32
}

type Function struct {
	TypeIndex    uint32
	Locals       []byte
	LocalCount   uint64
	Body         []byte
	Instructions []Instruction
}

// Module is a parsed WebAssembly binary. It is read only once returned by
// Parse.
type Module struct {
	raw []byte

	Sections  []Section
	TypeCount uint32
	Imports   []Import
	Functions []Function
	Tables    []TableType
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	HasStart  bool
	Start     uint32

	// entries of the global and export sections, without their counts
	globalEntries []byte
	exportEntries []byte
}

// Parse decodes wasm. The returned module keeps a reference to wasm, which
// must not be modified afterwards.
func Parse(wasm []byte) (*Module, error) {
	if len(wasm) < 8 || !bytes.Equal(wasm[:4], []byte(wasmMagic)) {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(wasm[4:8]); v != wasmVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	m := &Module{raw: wasm}
	r := &reader{buf: wasm, pos: 8}
	var (
		lastRank  int
		funcTypes []uint32
		bodies    [][]byte
	)
	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		payload, err := r.readBytes(size)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		sid := SectionID(id)
		if sid != SectionCustom {
			rank, ok := sectionRank[sid]
			if !ok {
				return nil, fmt.Errorf("%w: %d", ErrUnknownSection, id)
			}
			if rank <= lastRank {
				return nil, fmt.Errorf("%w: %d", ErrSectionOrder, id)
			}
			lastRank = rank
		}
		m.Sections = append(m.Sections, Section{ID: sid, Payload: payload})

		sr := &reader{buf: payload}
		switch sid {
		case SectionType:
			m.TypeCount, err = sr.readCount()
			sr.pos = len(payload)
		case SectionImport:
			err = m.decodeImports(sr)
		case SectionFunction:
			funcTypes, err = decodeIndices(sr)
		case SectionTable:
			err = m.decodeTables(sr)
		case SectionMemory:
			err = m.decodeMemories(sr)
		case SectionGlobal:
			err = m.decodeGlobals(sr)
		case SectionExport:
			err = m.decodeExports(sr)
		case SectionStart:
			m.HasStart = true
			m.Start, err = sr.readU32()
		case SectionCode:
			bodies, err = decodeBodies(sr)
		case SectionTag:
			return nil, fmt.Errorf("%w: exception handling", ErrUnsupportedFeature)
		default:
			sr.pos = len(payload)
		}
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrMalformedSection, id, err)
		}
		if sr.remaining() != 0 {
			return nil, fmt.Errorf("%w %d: %d unread bytes", ErrMalformedSection, id, sr.remaining())
		}
	}

	if len(funcTypes) != len(bodies) {
		return nil, fmt.Errorf("%w: %d declared, %d bodies", ErrFunctionCount, len(funcTypes), len(bodies))
	}
	m.Functions = make([]Function, len(bodies))
	for i, body := range bodies {
		fn, err := decodeFunction(body)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", m.ImportedFunctions()+i, err)
		}
		fn.TypeIndex = funcTypes[i]
		m.Functions[i] = fn
	}
	return m, nil
}

// Bytes returns the binary the module was parsed from.
func (m *Module) Bytes() []byte {
	return m.raw
}

func (m *Module) countImports(kind ExternalKind) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

func (m *Module) ImportedFunctions() int {
	return m.countImports(ExternalFunction)
}

func (m *Module) ImportedGlobals() int {
	return m.countImports(ExternalGlobal)
}

// GlobalCount is the size of the global index space.
func (m *Module) GlobalCount() int {
	return m.ImportedGlobals() + len(m.Globals)
}

// FunctionCount is the size of the function index space.
func (m *Module) FunctionCount() int {
	return m.ImportedFunctions() + len(m.Functions)
}

// MemoryCount is the size of the memory index space.
func (m *Module) MemoryCount() int {
	return m.countImports(ExternalMemory) + len(m.Memories)
}

// TableCount is the size of the table index space.
func (m *Module) TableCount() int {
	return m.countImports(ExternalTable) + len(m.Tables)
}

// Export looks up an export by name.
func (m *Module) Export(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// Metered reports whether the module carries the metering globals.
func (m *Module) Metered() bool {
	remaining, ok := m.Export(RemainingPointsExport)
	if !ok || remaining.Kind != ExternalGlobal {
		return false
	}
	exhausted, ok := m.Export(PointsExhaustedExport)
	return ok && exhausted.Kind == ExternalGlobal
}

func decodeIndices(r *reader) ([]uint32, error) {
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	indices := make([]uint32, n)
	for i := range indices {
		if indices[i], err = r.readU32(); err != nil {
			return nil, err
		}
	}
	return indices, nil
}

func decodeLimits(r *reader) (Limits, error) {
	var l Limits
	flags, err := r.readByte()
	if err != nil {
		return l, err
	}
	if flags > 0x03 {
		return l, fmt.Errorf("%w: limits flags 0x%x", ErrUnsupportedFeature, flags)
	}
	l.HasMax = flags&0x01 != 0
	l.Shared = flags&0x02 != 0
	if l.Min, err = r.readU32(); err != nil {
		return l, err
	}
	if l.HasMax {
		if l.Max, err = r.readU32(); err != nil {
			return l, err
		}
	}
	return l, nil
}

func decodeTableType(r *reader) (TableType, error) {
	var t TableType
	var err error
	if t.ElemType, err = r.readByte(); err != nil {
		return t, err
	}
	t.Limits, err = decodeLimits(r)
	return t, err
}

func decodeGlobalType(r *reader) (GlobalType, error) {
	var g GlobalType
	vt, err := r.readByte()
	if err != nil {
		return g, err
	}
	if !isValueType(vt) {
		return g, fmt.Errorf("invalid global type 0x%x", vt)
	}
	mut, err := r.readByte()
	if err != nil {
		return g, err
	}
	if mut > 1 {
		return g, fmt.Errorf("invalid global mutability 0x%x", mut)
	}
	return GlobalType{ValueType: vt, Mutable: mut == 1}, nil
}

func (m *Module) decodeImports(r *reader) error {
	n, err := r.readCount()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, n)
	for i := uint32(0); i < n; i++ {
		var imp Import
		if imp.Module, err = r.readName(); err != nil {
			return err
		}
		if imp.Name, err = r.readName(); err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		imp.Kind = ExternalKind(kind)
		switch imp.Kind {
		case ExternalFunction:
			imp.TypeIndex, err = r.readU32()
		case ExternalTable:
			imp.Table, err = decodeTableType(r)
		case ExternalMemory:
			imp.Memory, err = decodeLimits(r)
		case ExternalGlobal:
			imp.Global, err = decodeGlobalType(r)
		default:
			err = fmt.Errorf("%w: %s import", ErrUnsupportedFeature, imp.Kind)
		}
		if err != nil {
			return fmt.Errorf("import %s.%s: %w", imp.Module, imp.Name, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func (m *Module) decodeTables(r *reader) error {
	n, err := r.readCount()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		if m.Tables[i], err = decodeTableType(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) decodeMemories(r *reader) error {
	n, err := r.readCount()
	if err != nil {
		return err
	}
	m.Memories = make([]Limits, n)
	for i := range m.Memories {
		if m.Memories[i], err = decodeLimits(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) decodeGlobals(r *reader) error {
	n, err := r.readCount()
	if err != nil {
		return err
	}
	m.globalEntries = r.buf[r.pos:]
	m.Globals = make([]Global, n)
	for i := range m.Globals {
		if m.Globals[i].Type, err = decodeGlobalType(r); err != nil {
			return err
		}
		start := r.pos
		if _, err := r.readExpr(); err != nil {
			return fmt.Errorf("global %d initializer: %w", i, err)
		}
		m.Globals[i].Init = r.buf[start:r.pos]
	}
	return nil
}

func (m *Module) decodeExports(r *reader) error {
	n, err := r.readCount()
	if err != nil {
		return err
	}
	m.exportEntries = r.buf[r.pos:]
	m.Exports = make([]Export, n)
	seen := make(map[string]struct{}, n)
	for i := range m.Exports {
		e := &m.Exports[i]
		if e.Name, err = r.readName(); err != nil {
			return err
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("duplicate export %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		e.Kind = ExternalKind(kind)
		if e.Kind > ExternalGlobal {
			return fmt.Errorf("%w: %s export", ErrUnsupportedFeature, e.Kind)
		}
		if e.Index, err = r.readU32(); err != nil {
			return err
		}
	}
	return nil
}

func decodeBodies(r *reader) ([][]byte, error) {
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	bodies := make([][]byte, n)
	for i := range bodies {
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if bodies[i], err = r.readBytes(size); err != nil {
			return nil, err
		}
	}
	return bodies, nil
}

func decodeFunction(body []byte) (Function, error) {
	r := &reader{buf: body}
	groups, err := r.readCount()
	if err != nil {
		return Function{}, err
	}
	var total uint64
	for i := uint32(0); i < groups; i++ {
		count, err := r.readU32()
		if err != nil {
			return Function{}, err
		}
		total += uint64(count)
		if total > maxLocals {
			return Function{}, fmt.Errorf("%w: %d", ErrTooManyLocals, total)
		}
		vt, err := r.readByte()
		if err != nil {
			return Function{}, err
		}
		if !isValueType(vt) {
			return Function{}, fmt.Errorf("invalid local type 0x%x", vt)
		}
	}

	fn := Function{
		Locals:     body[:r.pos],
		LocalCount: total,
		Body:       body[r.pos:],
	}
	er := &reader{buf: fn.Body}
	if fn.Instructions, err = er.readExpr(); err != nil {
		return Function{}, err
	}
	if er.remaining() != 0 {
		return Function{}, ErrTrailingBytes
	}
	return fn, nil
}
