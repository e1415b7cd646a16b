// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendS64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func encodeModule(sections []Section) []byte {
	size := 8
	for _, s := range sections {
		size += 6 + len(s.Payload)
	}
	out := make([]byte, 0, size)
	out = append(out, wasmMagic...)
	out = append(out, wasmVersion, 0, 0, 0)
	for _, s := range sections {
		out = append(out, byte(s.ID))
		out = appendU32(out, uint32(len(s.Payload)))
		out = append(out, s.Payload...)
	}
	return out
}
