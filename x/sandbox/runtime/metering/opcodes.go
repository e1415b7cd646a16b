// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

// Operators of the WebAssembly instruction set accepted by the decoder.
// Single byte opcodes keep their encoding, 0xFC-prefixed opcodes are 0xFC00|sub.
const (
	OpUnreachable        Operator = 0x00
	OpNop                Operator = 0x01
	OpBlock              Operator = 0x02
	OpLoop               Operator = 0x03
	OpIf                 Operator = 0x04
	OpElse               Operator = 0x05
	OpEnd                Operator = 0x0B
	OpBr                 Operator = 0x0C
	OpBrIf               Operator = 0x0D
	OpBrTable            Operator = 0x0E
	OpReturn             Operator = 0x0F
	OpCall               Operator = 0x10
	OpCallIndirect       Operator = 0x11
	OpReturnCall         Operator = 0x12
	OpReturnCallIndirect Operator = 0x13
	OpDrop               Operator = 0x1A
	OpSelect             Operator = 0x1B
	OpSelectTyped        Operator = 0x1C
	OpLocalGet           Operator = 0x20
	OpLocalSet           Operator = 0x21
	OpLocalTee           Operator = 0x22
	OpGlobalGet          Operator = 0x23
	OpGlobalSet          Operator = 0x24
	OpTableGet           Operator = 0x25
	OpTableSet           Operator = 0x26
	OpI32Load            Operator = 0x28
	OpI64Load            Operator = 0x29
	OpF32Load            Operator = 0x2A
	OpF64Load            Operator = 0x2B
	OpI32Load8S          Operator = 0x2C
	OpI32Load8U          Operator = 0x2D
	OpI32Load16S         Operator = 0x2E
	OpI32Load16U         Operator = 0x2F
	OpI64Load8S          Operator = 0x30
	OpI64Load8U          Operator = 0x31
	OpI64Load16S         Operator = 0x32
	OpI64Load16U         Operator = 0x33
	OpI64Load32S         Operator = 0x34
	OpI64Load32U         Operator = 0x35
	OpI32Store           Operator = 0x36
	OpI64Store           Operator = 0x37
	OpF32Store           Operator = 0x38
	OpF64Store           Operator = 0x39
	OpI32Store8          Operator = 0x3A
	OpI32Store16         Operator = 0x3B
	OpI64Store8          Operator = 0x3C
	OpI64Store16         Operator = 0x3D
	OpI64Store32         Operator = 0x3E
	OpMemorySize         Operator = 0x3F
	OpMemoryGrow         Operator = 0x40
	OpI32Const           Operator = 0x41
	OpI64Const           Operator = 0x42
	OpF32Const           Operator = 0x43
	OpF64Const           Operator = 0x44
	OpI32Eqz             Operator = 0x45
	OpI32Eq              Operator = 0x46
	OpI32Ne              Operator = 0x47
	OpI32LtS             Operator = 0x48
	OpI32LtU             Operator = 0x49
	OpI32GtS             Operator = 0x4A
	OpI32GtU             Operator = 0x4B
	OpI32LeS             Operator = 0x4C
	OpI32LeU             Operator = 0x4D
	OpI32GeS             Operator = 0x4E
	OpI32GeU             Operator = 0x4F
	OpI64Eqz             Operator = 0x50
	OpI64Eq              Operator = 0x51
	OpI64Ne              Operator = 0x52
	OpI64LtS             Operator = 0x53
	OpI64LtU             Operator = 0x54
	OpI64GtS             Operator = 0x55
	OpI64GtU             Operator = 0x56
	OpI64LeS             Operator = 0x57
	OpI64LeU             Operator = 0x58
	OpI64GeS             Operator = 0x59
	OpI64GeU             Operator = 0x5A
	OpF32Eq              Operator = 0x5B
	OpF32Ne              Operator = 0x5C
	OpF32Lt              Operator = 0x5D
	OpF32Gt              Operator = 0x5E
	OpF32Le              Operator = 0x5F
	OpF32Ge              Operator = 0x60
	OpF64Eq              Operator = 0x61
	OpF64Ne              Operator = 0x62
	OpF64Lt              Operator = 0x63
	OpF64Gt              Operator = 0x64
	OpF64Le              Operator = 0x65
	OpF64Ge              Operator = 0x66
	OpI32Clz             Operator = 0x67
	OpI32Ctz             Operator = 0x68
	OpI32Popcnt          Operator = 0x69
	OpI32Add             Operator = 0x6A
	OpI32Sub             Operator = 0x6B
	OpI32Mul             Operator = 0x6C
	OpI32DivS            Operator = 0x6D
	OpI32DivU            Operator = 0x6E
	OpI32RemS            Operator = 0x6F
	OpI32RemU            Operator = 0x70
	OpI32And             Operator = 0x71
	OpI32Or              Operator = 0x72
	OpI32Xor             Operator = 0x73
	OpI32Shl             Operator = 0x74
	OpI32ShrS            Operator = 0x75
	OpI32ShrU            Operator = 0x76
	OpI32Rotl            Operator = 0x77
	OpI32Rotr            Operator = 0x78
	OpI64Clz             Operator = 0x79
	OpI64Ctz             Operator = 0x7A
	OpI64Popcnt          Operator = 0x7B
	OpI64Add             Operator = 0x7C
	OpI64Sub             Operator = 0x7D
	OpI64Mul             Operator = 0x7E
	OpI64DivS            Operator = 0x7F
	OpI64DivU            Operator = 0x80
	OpI64RemS            Operator = 0x81
	OpI64RemU            Operator = 0x82
	OpI64And             Operator = 0x83
	OpI64Or              Operator = 0x84
	OpI64Xor             Operator = 0x85
	OpI64Shl             Operator = 0x86
	OpI64ShrS            Operator = 0x87
	OpI64ShrU            Operator = 0x88
	OpI64Rotl            Operator = 0x89
	OpI64Rotr            Operator = 0x8A
	OpF32Abs             Operator = 0x8B
	OpF32Neg             Operator = 0x8C
	OpF32Ceil            Operator = 0x8D
	OpF32Floor           Operator = 0x8E
	OpF32Trunc           Operator = 0x8F
	OpF32Nearest         Operator = 0x90
	OpF32Sqrt            Operator = 0x91
	OpF32Add             Operator = 0x92
	OpF32Sub             Operator = 0x93
	OpF32Mul             Operator = 0x94
	OpF32Div             Operator = 0x95
	OpF32Min             Operator = 0x96
	OpF32Max             Operator = 0x97
	OpF32Copysign        Operator = 0x98
	OpF64Abs             Operator = 0x99
	OpF64Neg             Operator = 0x9A
	OpF64Ceil            Operator = 0x9B
	OpF64Floor           Operator = 0x9C
	OpF64Trunc           Operator = 0x9D
	OpF64Nearest         Operator = 0x9E
	OpF64Sqrt            Operator = 0x9F
	OpF64Add             Operator = 0xA0
	OpF64Sub             Operator = 0xA1
	OpF64Mul             Operator = 0xA2
	OpF64Div             Operator = 0xA3
	OpF64Min             Operator = 0xA4
	OpF64Max             Operator = 0xA5
	OpF64Copysign        Operator = 0xA6
	OpI32WrapI64         Operator = 0xA7
	OpI32TruncF32S       Operator = 0xA8
	OpI32TruncF32U       Operator = 0xA9
	OpI32TruncF64S       Operator = 0xAA
	OpI32TruncF64U       Operator = 0xAB
	OpI64ExtendI32S      Operator = 0xAC
	OpI64ExtendI32U      Operator = 0xAD
	OpI64TruncF32S       Operator = 0xAE
	OpI64TruncF32U       Operator = 0xAF
	OpI64TruncF64S       Operator = 0xB0
	OpI64TruncF64U       Operator = 0xB1
	OpF32ConvertI32S     Operator = 0xB2
	OpF32ConvertI32U     Operator = 0xB3
	OpF32ConvertI64S     Operator = 0xB4
	OpF32ConvertI64U     Operator = 0xB5
	OpF32DemoteF64       Operator = 0xB6
	OpF64ConvertI32S     Operator = 0xB7
	OpF64ConvertI32U     Operator = 0xB8
	OpF64ConvertI64S     Operator = 0xB9
	OpF64ConvertI64U     Operator = 0xBA
	OpF64PromoteF32      Operator = 0xBB
	OpI32ReinterpretF32  Operator = 0xBC
	OpI64ReinterpretF64  Operator = 0xBD
	OpF32ReinterpretI32  Operator = 0xBE
	OpF64ReinterpretI64  Operator = 0xBF
	OpI32Extend8S        Operator = 0xC0
	OpI32Extend16S       Operator = 0xC1
	OpI64Extend8S        Operator = 0xC2
	OpI64Extend16S       Operator = 0xC3
	OpI64Extend32S       Operator = 0xC4
	OpRefNull            Operator = 0xD0
	OpRefIsNull          Operator = 0xD1
	OpRefFunc            Operator = 0xD2
	OpI32TruncSatF32S    Operator = 0xFC00
	OpI32TruncSatF32U    Operator = 0xFC01
	OpI32TruncSatF64S    Operator = 0xFC02
	OpI32TruncSatF64U    Operator = 0xFC03
	OpI64TruncSatF32S    Operator = 0xFC04
	OpI64TruncSatF32U    Operator = 0xFC05
	OpI64TruncSatF64S    Operator = 0xFC06
	OpI64TruncSatF64U    Operator = 0xFC07
	OpMemoryInit         Operator = 0xFC08
	OpDataDrop           Operator = 0xFC09
	OpMemoryCopy         Operator = 0xFC0A
	OpMemoryFill         Operator = 0xFC0B
	OpTableInit          Operator = 0xFC0C
	OpElemDrop           Operator = 0xFC0D
	OpTableCopy          Operator = 0xFC0E
	OpTableGrow          Operator = 0xFC0F
	OpTableSize          Operator = 0xFC10
	OpTableFill          Operator = 0xFC11
)

var operatorTable = map[Operator]operatorInfo{
	OpUnreachable:        {"unreachable", CategoryControl},
	OpNop:                {"nop", CategoryControl},
	OpBlock:              {"block", CategoryControl},
	OpLoop:               {"loop", CategoryControl},
	OpIf:                 {"if", CategoryControl},
	OpElse:               {"else", CategoryControl},
	OpEnd:                {"end", CategoryControl},
	OpBr:                 {"br", CategoryControl},
	OpBrIf:               {"br_if", CategoryControl},
	OpBrTable:            {"br_table", CategoryControl},
	OpReturn:             {"return", CategoryControl},
	OpCall:               {"call", CategoryControl},
	OpCallIndirect:       {"call_indirect", CategoryControl},
	OpReturnCall:         {"return_call", CategoryControl},
	OpReturnCallIndirect: {"return_call_indirect", CategoryControl},
	OpDrop:               {"drop", CategoryParametric},
	OpSelect:             {"select", CategoryParametric},
	OpSelectTyped:        {"select", CategoryParametric},
	OpLocalGet:           {"local.get", CategoryVariable},
	OpLocalSet:           {"local.set", CategoryVariable},
	OpLocalTee:           {"local.tee", CategoryVariable},
	OpGlobalGet:          {"global.get", CategoryVariable},
	OpGlobalSet:          {"global.set", CategoryVariable},
	OpTableGet:           {"table.get", CategoryTable},
	OpTableSet:           {"table.set", CategoryTable},
	OpI32Load:            {"i32.load", CategoryMemory},
	OpI64Load:            {"i64.load", CategoryMemory},
	OpF32Load:            {"f32.load", CategoryMemory},
	OpF64Load:            {"f64.load", CategoryMemory},
	OpI32Load8S:          {"i32.load8_s", CategoryMemory},
	OpI32Load8U:          {"i32.load8_u", CategoryMemory},
	OpI32Load16S:         {"i32.load16_s", CategoryMemory},
	OpI32Load16U:         {"i32.load16_u", CategoryMemory},
	OpI64Load8S:          {"i64.load8_s", CategoryMemory},
	OpI64Load8U:          {"i64.load8_u", CategoryMemory},
	OpI64Load16S:         {"i64.load16_s", CategoryMemory},
	OpI64Load16U:         {"i64.load16_u", CategoryMemory},
	OpI64Load32S:         {"i64.load32_s", CategoryMemory},
	OpI64Load32U:         {"i64.load32_u", CategoryMemory},
	OpI32Store:           {"i32.store", CategoryMemory},
	OpI64Store:           {"i64.store", CategoryMemory},
	OpF32Store:           {"f32.store", CategoryMemory},
	OpF64Store:           {"f64.store", CategoryMemory},
	OpI32Store8:          {"i32.store8", CategoryMemory},
	OpI32Store16:         {"i32.store16", CategoryMemory},
	OpI64Store8:          {"i64.store8", CategoryMemory},
	OpI64Store16:         {"i64.store16", CategoryMemory},
	OpI64Store32:         {"i64.store32", CategoryMemory},
	OpMemorySize:         {"memory.size", CategoryMemory},
	OpMemoryGrow:         {"memory.grow", CategoryMemory},
	OpI32Const:           {"i32.const", CategoryConstant},
	OpI64Const:           {"i64.const", CategoryConstant},
	OpF32Const:           {"f32.const", CategoryConstant},
	OpF64Const:           {"f64.const", CategoryConstant},
	OpI32Eqz:             {"i32.eqz", CategoryNumeric},
	OpI32Eq:              {"i32.eq", CategoryNumeric},
	OpI32Ne:              {"i32.ne", CategoryNumeric},
	OpI32LtS:             {"i32.lt_s", CategoryNumeric},
	OpI32LtU:             {"i32.lt_u", CategoryNumeric},
	OpI32GtS:             {"i32.gt_s", CategoryNumeric},
	OpI32GtU:             {"i32.gt_u", CategoryNumeric},
	OpI32LeS:             {"i32.le_s", CategoryNumeric},
	OpI32LeU:             {"i32.le_u", CategoryNumeric},
	OpI32GeS:             {"i32.ge_s", CategoryNumeric},
	OpI32GeU:             {"i32.ge_u", CategoryNumeric},
	OpI64Eqz:             {"i64.eqz", CategoryNumeric},
	OpI64Eq:              {"i64.eq", CategoryNumeric},
	OpI64Ne:              {"i64.ne", CategoryNumeric},
	OpI64LtS:             {"i64.lt_s", CategoryNumeric},
	OpI64LtU:             {"i64.lt_u", CategoryNumeric},
	OpI64GtS:             {"i64.gt_s", CategoryNumeric},
	OpI64GtU:             {"i64.gt_u", CategoryNumeric},
	OpI64LeS:             {"i64.le_s", CategoryNumeric},
	OpI64LeU:             {"i64.le_u", CategoryNumeric},
	OpI64GeS:             {"i64.ge_s", CategoryNumeric},
	OpI64GeU:             {"i64.ge_u", CategoryNumeric},
	OpF32Eq:              {"f32.eq", CategoryNumeric},
	OpF32Ne:              {"f32.ne", CategoryNumeric},
	OpF32Lt:              {"f32.lt", CategoryNumeric},
	OpF32Gt:              {"f32.gt", CategoryNumeric},
	OpF32Le:              {"f32.le", CategoryNumeric},
	OpF32Ge:              {"f32.ge", CategoryNumeric},
	OpF64Eq:              {"f64.eq", CategoryNumeric},
	OpF64Ne:              {"f64.ne", CategoryNumeric},
	OpF64Lt:              {"f64.lt", CategoryNumeric},
	OpF64Gt:              {"f64.gt", CategoryNumeric},
	OpF64Le:              {"f64.le", CategoryNumeric},
	OpF64Ge:              {"f64.ge", CategoryNumeric},
	OpI32Clz:             {"i32.clz", CategoryNumeric},
	OpI32Ctz:             {"i32.ctz", CategoryNumeric},
	OpI32Popcnt:          {"i32.popcnt", CategoryNumeric},
	OpI32Add:             {"i32.add", CategoryNumeric},
	OpI32Sub:             {"i32.sub", CategoryNumeric},
	OpI32Mul:             {"i32.mul", CategoryNumeric},
	OpI32DivS:            {"i32.div_s", CategoryNumeric},
	OpI32DivU:            {"i32.div_u", CategoryNumeric},
	OpI32RemS:            {"i32.rem_s", CategoryNumeric},
	OpI32RemU:            {"i32.rem_u", CategoryNumeric},
	OpI32And:             {"i32.and", CategoryNumeric},
	OpI32Or:              {"i32.or", CategoryNumeric},
	OpI32Xor:             {"i32.xor", CategoryNumeric},
	OpI32Shl:             {"i32.shl", CategoryNumeric},
	OpI32ShrS:            {"i32.shr_s", CategoryNumeric},
	OpI32ShrU:            {"i32.shr_u", CategoryNumeric},
	OpI32Rotl:            {"i32.rotl", CategoryNumeric},
	OpI32Rotr:            {"i32.rotr", CategoryNumeric},
	OpI64Clz:             {"i64.clz", CategoryNumeric},
	OpI64Ctz:             {"i64.ctz", CategoryNumeric},
	OpI64Popcnt:          {"i64.popcnt", CategoryNumeric},
	OpI64Add:             {"i64.add", CategoryNumeric},
	OpI64Sub:             {"i64.sub", CategoryNumeric},
	OpI64Mul:             {"i64.mul", CategoryNumeric},
	OpI64DivS:            {"i64.div_s", CategoryNumeric},
	OpI64DivU:            {"i64.div_u", CategoryNumeric},
	OpI64RemS:            {"i64.rem_s", CategoryNumeric},
	OpI64RemU:            {"i64.rem_u", CategoryNumeric},
	OpI64And:             {"i64.and", CategoryNumeric},
	OpI64Or:              {"i64.or", CategoryNumeric},
	OpI64Xor:             {"i64.xor", CategoryNumeric},
	OpI64Shl:             {"i64.shl", CategoryNumeric},
	OpI64ShrS:            {"i64.shr_s", CategoryNumeric},
	OpI64ShrU:            {"i64.shr_u", CategoryNumeric},
	OpI64Rotl:            {"i64.rotl", CategoryNumeric},
	OpI64Rotr:            {"i64.rotr", CategoryNumeric},
	OpF32Abs:             {"f32.abs", CategoryNumeric},
	OpF32Neg:             {"f32.neg", CategoryNumeric},
	OpF32Ceil:            {"f32.ceil", CategoryNumeric},
	OpF32Floor:           {"f32.floor", CategoryNumeric},
	OpF32Trunc:           {"f32.trunc", CategoryNumeric},
	OpF32Nearest:         {"f32.nearest", CategoryNumeric},
	OpF32Sqrt:            {"f32.sqrt", CategoryNumeric},
	OpF32Add:             {"f32.add", CategoryNumeric},
	OpF32Sub:             {"f32.sub", CategoryNumeric},
	OpF32Mul:             {"f32.mul", CategoryNumeric},
	OpF32Div:             {"f32.div", CategoryNumeric},
	OpF32Min:             {"f32.min", CategoryNumeric},
	OpF32Max:             {"f32.max", CategoryNumeric},
	OpF32Copysign:        {"f32.copysign", CategoryNumeric},
	OpF64Abs:             {"f64.abs", CategoryNumeric},
	OpF64Neg:             {"f64.neg", CategoryNumeric},
	OpF64Ceil:            {"f64.ceil", CategoryNumeric},
	OpF64Floor:           {"f64.floor", CategoryNumeric},
	OpF64Trunc:           {"f64.trunc", CategoryNumeric},
	OpF64Nearest:         {"f64.nearest", CategoryNumeric},
	OpF64Sqrt:            {"f64.sqrt", CategoryNumeric},
	OpF64Add:             {"f64.add", CategoryNumeric},
	OpF64Sub:             {"f64.sub", CategoryNumeric},
	OpF64Mul:             {"f64.mul", CategoryNumeric},
	OpF64Div:             {"f64.div", CategoryNumeric},
	OpF64Min:             {"f64.min", CategoryNumeric},
	OpF64Max:             {"f64.max", CategoryNumeric},
	OpF64Copysign:        {"f64.copysign", CategoryNumeric},
	OpI32WrapI64:         {"i32.wrap_i64", CategoryConversion},
	OpI32TruncF32S:       {"i32.trunc_f32_s", CategoryConversion},
	OpI32TruncF32U:       {"i32.trunc_f32_u", CategoryConversion},
	OpI32TruncF64S:       {"i32.trunc_f64_s", CategoryConversion},
	OpI32TruncF64U:       {"i32.trunc_f64_u", CategoryConversion},
	OpI64ExtendI32S:      {"i64.extend_i32_s", CategoryConversion},
	OpI64ExtendI32U:      {"i64.extend_i32_u", CategoryConversion},
	OpI64TruncF32S:       {"i64.trunc_f32_s", CategoryConversion},
	OpI64TruncF32U:       {"i64.trunc_f32_u", CategoryConversion},
	OpI64TruncF64S:       {"i64.trunc_f64_s", CategoryConversion},
	OpI64TruncF64U:       {"i64.trunc_f64_u", CategoryConversion},
	OpF32ConvertI32S:     {"f32.convert_i32_s", CategoryConversion},
	OpF32ConvertI32U:     {"f32.convert_i32_u", CategoryConversion},
	OpF32ConvertI64S:     {"f32.convert_i64_s", CategoryConversion},
	OpF32ConvertI64U:     {"f32.convert_i64_u", CategoryConversion},
	OpF32DemoteF64:       {"f32.demote_f64", CategoryConversion},
	OpF64ConvertI32S:     {"f64.convert_i32_s", CategoryConversion},
	OpF64ConvertI32U:     {"f64.convert_i32_u", CategoryConversion},
	OpF64ConvertI64S:     {"f64.convert_i64_s", CategoryConversion},
	OpF64ConvertI64U:     {"f64.convert_i64_u", CategoryConversion},
	OpF64PromoteF32:      {"f64.promote_f32", CategoryConversion},
	OpI32ReinterpretF32:  {"i32.reinterpret_f32", CategoryConversion},
	OpI64ReinterpretF64:  {"i64.reinterpret_f64", CategoryConversion},
	OpF32ReinterpretI32:  {"f32.reinterpret_i32", CategoryConversion},
	OpF64ReinterpretI64:  {"f64.reinterpret_i64", CategoryConversion},
	OpI32Extend8S:        {"i32.extend8_s", CategoryNumeric},
	OpI32Extend16S:       {"i32.extend16_s", CategoryNumeric},
	OpI64Extend8S:        {"i64.extend8_s", CategoryNumeric},
	OpI64Extend16S:       {"i64.extend16_s", CategoryNumeric},
	OpI64Extend32S:       {"i64.extend32_s", CategoryNumeric},
	OpRefNull:            {"ref.null", CategoryReference},
	OpRefIsNull:          {"ref.is_null", CategoryReference},
	OpRefFunc:            {"ref.func", CategoryReference},
	OpI32TruncSatF32S:    {"i32.trunc_sat_f32_s", CategoryConversion},
	OpI32TruncSatF32U:    {"i32.trunc_sat_f32_u", CategoryConversion},
	OpI32TruncSatF64S:    {"i32.trunc_sat_f64_s", CategoryConversion},
	OpI32TruncSatF64U:    {"i32.trunc_sat_f64_u", CategoryConversion},
	OpI64TruncSatF32S:    {"i64.trunc_sat_f32_s", CategoryConversion},
	OpI64TruncSatF32U:    {"i64.trunc_sat_f32_u", CategoryConversion},
	OpI64TruncSatF64S:    {"i64.trunc_sat_f64_s", CategoryConversion},
	OpI64TruncSatF64U:    {"i64.trunc_sat_f64_u", CategoryConversion},
	OpMemoryInit:         {"memory.init", CategoryMemory},
	OpDataDrop:           {"data.drop", CategoryMemory},
	OpMemoryCopy:         {"memory.copy", CategoryMemory},
	OpMemoryFill:         {"memory.fill", CategoryMemory},
	OpTableInit:          {"table.init", CategoryTable},
	OpElemDrop:           {"elem.drop", CategoryTable},
	OpTableCopy:          {"table.copy", CategoryTable},
	OpTableGrow:          {"table.grow", CategoryTable},
	OpTableSize:          {"table.size", CategoryTable},
	OpTableFill:          {"table.fill", CategoryTable},
}
