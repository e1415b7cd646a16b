// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperatorNames(t *testing.T) {
	require := require.New(t)

	require.Equal("local.get", OpLocalGet.String())
	require.Equal("i32.add", OpI32Add.String())
	require.Equal("memory.fill", OpMemoryFill.String())
	require.Equal(CategoryNumeric, OpI32Add.Category())
	require.Equal(CategoryControl, OpBrTable.Category())
	require.Equal(CategoryMemory, OpI64Store32.Category())
	require.False(Operator(0xFD00).Valid())

	ops, ok := OperatorsByName("select")
	require.True(ok)
	require.Equal([]Operator{OpSelect, OpSelectTyped}, ops)

	_, ok = OperatorsByName("v128.load")
	require.False(ok)
}

func TestOperatorsSorted(t *testing.T) {
	ops := Operators()
	require.NotEmpty(t, ops)
	for i := 1; i < len(ops); i++ {
		require.Less(t, ops[i-1], ops[i])
	}
}

func TestScheduleCost(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		op       Operator
		want     uint64
	}{
		{
			name:     "default",
			schedule: Schedule{Default: 3},
			op:       OpI32Add,
			want:     3,
		},
		{
			name: "category",
			schedule: Schedule{
				Default:    1,
				Categories: map[string]uint64{"memory": 7},
			},
			op:   OpI32Load,
			want: 7,
		},
		{
			name: "operator overrides category",
			schedule: Schedule{
				Default:    1,
				Categories: map[string]uint64{"numeric": 2},
				Operators:  map[string]uint64{"i64.div_s": 40},
			},
			op:   OpI64DivS,
			want: 40,
		},
		{
			name:     "unpriced defaults to zero",
			schedule: Schedule{},
			op:       OpNop,
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			table, err := tt.schedule.Compile()
			require.NoError(err)
			require.Equal(tt.want, table.Cost(tt.op))
		})
	}
}

func TestScheduleUnknownNames(t *testing.T) {
	require := require.New(t)

	_, err := Schedule{Operators: map[string]uint64{"i32.frobnicate": 1}}.Compile()
	require.ErrorIs(err, ErrUnknownOperator)

	_, err = Schedule{Categories: map[string]uint64{"simd": 1}}.Compile()
	require.ErrorIs(err, ErrUnknownCategory)
}

func TestScheduleCoverage(t *testing.T) {
	require := require.New(t)

	partial := Schedule{
		Categories: map[string]uint64{
			"control":    1,
			"parametric": 1,
			"variable":   1,
			"table":      1,
			"memory":     1,
			"constant":   1,
			"numeric":    1,
		},
		Operators:       map[string]uint64{"i32.wrap_i64": 1},
		RequireCoverage: true,
	}
	table, err := partial.Compile()
	require.NoError(err)
	err = table.Validate()
	require.ErrorIs(err, ErrIncompleteCostModel)
	require.Contains(err.Error(), "conversion, reference")

	partial.Categories["conversion"] = 1
	partial.Categories["reference"] = 1
	table, err = partial.Compile()
	require.NoError(err)
	require.NoError(table.Validate())

	lax, err := Schedule{}.Compile()
	require.NoError(err)
	require.NoError(lax.Validate())
}

func TestLoadSchedule(t *testing.T) {
	require := require.New(t)

	s, err := LoadSchedule(strings.NewReader(`
default: 1
categories:
  memory: 3
operators:
  call: 10
require_coverage: false
`))
	require.NoError(err)
	require.Equal(uint64(1), s.Default)
	require.Equal(uint64(3), s.Categories["memory"])

	table, err := s.Compile()
	require.NoError(err)
	require.Equal(uint64(10), table.Cost(OpCall))
	require.Equal(uint64(3), table.Cost(OpI64Load8U))
	require.Equal(uint64(1), table.Cost(OpLocalGet))

	_, err = LoadSchedule(strings.NewReader("defualt: 1\n"))
	require.Error(err)
}

func TestUniform(t *testing.T) {
	c := Uniform(5)
	for _, op := range Operators() {
		require.Equal(t, uint64(5), c.Cost(op))
	}
}
