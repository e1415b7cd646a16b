// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	ErrUnexpectedEOF     = errors.New("unexpected end of module")
	ErrIntegerTooLong    = errors.New("leb128 integer too long")
	ErrIntegerOverflow   = errors.New("leb128 integer overflows its type")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrInvalidBlockType  = errors.New("invalid block type")
	ErrInvalidUTF8       = errors.New("name is not valid utf-8")
	ErrUnterminatedBlock = errors.New("expression is missing its end")
)

// reader walks a byte slice of the binary format.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) peekByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrUnexpectedEOF
	}
	return r.buf[r.pos], nil
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	if uint64(n) > uint64(r.remaining()) {
		return nil, ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) readUnsigned(maxBytes int) (uint64, error) {
	var (
		result uint64
		shift  uint
	)
	for i := 0; i < maxBytes; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, ErrIntegerTooLong
}

func (r *reader) readSigned(maxBytes int) (int64, error) {
	var (
		result int64
		shift  uint
		b      byte
		err    error
	)
	for i := 0; ; i++ {
		if i == maxBytes {
			return 0, ErrIntegerTooLong
		}
		b, err = r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (r *reader) readU32() (uint32, error) {
	v, err := r.readUnsigned(5)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrIntegerOverflow
	}
	return uint32(v), nil
}

// readCount reads a vector length. Every vector element occupies at least
// one byte, so a count larger than the remaining input is malformed.
func (r *reader) readCount() (uint32, error) {
	n, err := r.readU32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(r.remaining()) {
		return 0, ErrUnexpectedEOF
	}
	return n, nil
}

func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func isValueType(b byte) bool {
	switch b {
	case valueTypeI32, valueTypeI64, valueTypeF32, valueTypeF64, valueTypeV128,
		valueTypeFuncref, valueTypeExternref:
		return true
	default:
		return false
	}
}

func (r *reader) skipBlockType() error {
	b, err := r.peekByte()
	if err != nil {
		return err
	}
	if b == blockTypeEmpty || isValueType(b) {
		r.pos++
		return nil
	}
	idx, err := r.readSigned(5)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: 0x%x", ErrInvalidBlockType, b)
	}
	return nil
}

func (r *reader) skipMemArg() error {
	align, err := r.readU32()
	if err != nil {
		return err
	}
	if align&0x40 != 0 {
		if _, err := r.readU32(); err != nil {
			return err
		}
	}
	_, err = r.readUnsigned(10)
	return err
}

// readInstruction decodes one instruction, returning its operator and the
// first index immediate for instructions that carry one.
func (r *reader) readInstruction() (Operator, uint32, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	op := Operator(b)
	if b == prefixMisc {
		sub, err := r.readU32()
		if err != nil {
			return 0, 0, err
		}
		if sub > 0xff {
			return 0, 0, fmt.Errorf("%w: 0xfc 0x%x", ErrUnknownOpcode, sub)
		}
		op = Operator(prefixMisc)<<8 | Operator(sub)
	}
	if !op.Valid() {
		return 0, 0, fmt.Errorf("%w: 0x%x", ErrUnknownOpcode, uint16(op))
	}

	var index uint32
	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		err = r.skipBlockType()
	case op == OpBr || op == OpBrIf || op == OpCall || op == OpReturnCall ||
		op == OpLocalGet || op == OpLocalSet || op == OpLocalTee ||
		op == OpGlobalGet || op == OpGlobalSet ||
		op == OpTableGet || op == OpTableSet || op == OpRefFunc ||
		op == OpDataDrop || op == OpElemDrop ||
		op == OpTableGrow || op == OpTableSize || op == OpTableFill ||
		op == OpMemorySize || op == OpMemoryGrow || op == OpMemoryFill:
		index, err = r.readU32()
	case op == OpBrTable:
		var n uint32
		n, err = r.readCount()
		for i := uint32(0); err == nil && i <= n; i++ {
			_, err = r.readU32()
		}
	case op == OpCallIndirect || op == OpReturnCallIndirect,
		op == OpMemoryInit, op == OpMemoryCopy,
		op == OpTableInit, op == OpTableCopy:
		index, err = r.readU32()
		if err == nil {
			_, err = r.readU32()
		}
	case op == OpSelectTyped:
		var n uint32
		n, err = r.readCount()
		for i := uint32(0); err == nil && i < n; i++ {
			_, err = r.readByte()
		}
	case op >= OpI32Load && op <= OpI64Store32:
		err = r.skipMemArg()
	case op == OpI32Const:
		_, err = r.readSigned(5)
	case op == OpI64Const:
		_, err = r.readSigned(10)
	case op == OpF32Const:
		_, err = r.readBytes(4)
	case op == OpF64Const:
		_, err = r.readBytes(8)
	case op == OpRefNull:
		_, err = r.readByte()
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode %s immediate: %w", op, err)
	}
	return op, index, nil
}

// readExpr decodes instructions up to and including the end that closes the
// expression.
func (r *reader) readExpr() ([]Instruction, error) {
	var (
		instructions []Instruction
		depth        int
	)
	for r.remaining() > 0 {
		start := r.pos
		op, index, err := r.readInstruction()
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, Instruction{
			Op:     op,
			Offset: start,
			End:    r.pos,
			Index:  index,
		})
		switch op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				return instructions, nil
			}
			depth--
		}
	}
	return nil, ErrUnterminatedBlock
}
