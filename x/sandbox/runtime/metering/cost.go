// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v2"
)

var (
	ErrIncompleteCostModel = errors.New("cost model does not cover every operator category")
	ErrUnknownOperator     = errors.New("unknown operator")
	ErrUnknownCategory     = errors.New("unknown operator category")
)

// CostModel prices a single operator. Implementations must be pure: the
// result is computed once per static instruction at compile time.
type CostModel interface {
	Cost(Operator) uint64
}

// CostFunc adapts a plain function to the CostModel interface.
type CostFunc func(Operator) uint64

func (f CostFunc) Cost(op Operator) uint64 {
	return f(op)
}

// Uniform returns a cost model that charges cost for every operator.
func Uniform(cost uint64) CostModel {
	return CostFunc(func(Operator) uint64 { return cost })
}

// Schedule is the declarative form of a cost model, suitable for config files.
//
// An operator is priced by the first match of Operators, Categories and
// Default.
type Schedule struct {
	Default    uint64            `yaml:"default" mapstructure:"default"`
	Categories map[string]uint64 `yaml:"categories" mapstructure:"categories"`
	Operators  map[string]uint64 `yaml:"operators" mapstructure:"operators"`
	// RequireCoverage rejects schedules that leave a category unpriced.
	RequireCoverage bool `yaml:"require_coverage" mapstructure:"require_coverage"`
}

// LoadSchedule decodes a YAML cost schedule.
func LoadSchedule(r io.Reader) (Schedule, error) {
	var s Schedule
	b, err := io.ReadAll(r)
	if err != nil {
		return s, err
	}
	if err := yaml.UnmarshalStrict(b, &s); err != nil {
		return s, fmt.Errorf("failed to decode cost schedule: %w", err)
	}
	return s, nil
}

// Compile resolves operator and category names into a CostTable.
func (s Schedule) Compile() (*CostTable, error) {
	t := &CostTable{
		fallback:        s.Default,
		categories:      map[Category]uint64{},
		operators:       map[Operator]uint64{},
		requireCoverage: s.RequireCoverage,
	}
	for name, cost := range s.Categories {
		c, ok := CategoryByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
		}
		t.categories[c] = cost
	}
	for name, cost := range s.Operators {
		ops, ok := OperatorsByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
		}
		for _, op := range ops {
			t.operators[op] = cost
		}
	}
	return t, nil
}

// CostTable is a compiled Schedule.
type CostTable struct {
	fallback        uint64
	categories      map[Category]uint64
	operators       map[Operator]uint64
	requireCoverage bool
}

func (t *CostTable) Cost(op Operator) uint64 {
	if cost, ok := t.operators[op]; ok {
		return cost
	}
	if cost, ok := t.categories[op.Category()]; ok {
		return cost
	}
	return t.fallback
}

// Validate fails when coverage is required and a category is neither priced
// as a whole nor priced operator by operator.
func (t *CostTable) Validate() error {
	if !t.requireCoverage {
		return nil
	}
	missing := map[string]struct{}{}
	for _, op := range allOperators {
		c := op.Category()
		if _, ok := t.categories[c]; ok {
			continue
		}
		if _, ok := t.operators[op]; !ok {
			missing[c.String()] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := maps.Keys(missing)
	sort.Strings(names)
	return fmt.Errorf("%w: %s", ErrIncompleteCostModel, strings.Join(names, ", "))
}
