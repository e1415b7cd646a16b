// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sandbox"

type metrics struct {
	calls          prometheus.Counter
	exhausted      prometheus.Counter
	traps          prometheus.Counter
	pointsConsumed prometheus.Counter
	compiles       prometheus.Counter
	cacheHits      prometheus.Counter
	hostCalls      prometheus.Counter
	outOfBounds    prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	})
}

func newMetrics(reg prometheus.Registerer, instances func() float64) (*metrics, error) {
	m := &metrics{
		calls:          newCounter("calls", "number of guest calls"),
		exhausted:      newCounter("points_exhausted", "number of calls trapped by the metering check"),
		traps:          newCounter("traps", "number of calls trapped for any other reason"),
		pointsConsumed: newCounter("points_consumed", "points deducted from instance ledgers"),
		compiles:       newCounter("compiles", "number of modules instrumented and compiled"),
		cacheHits:      newCounter("module_cache_hits", "number of compiles served from the module cache"),
		hostCalls:      newCounter("host_calls", "number of host function invocations"),
		outOfBounds:    newCounter("out_of_bounds", "number of guest ranges rejected by the memory validator"),
	}
	live := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "instances",
		Help:      "number of live instances",
	}, instances)

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.calls),
		reg.Register(m.exhausted),
		reg.Register(m.traps),
		reg.Register(m.pointsConsumed),
		reg.Register(m.compiles),
		reg.Register(m.cacheHits),
		reg.Register(m.hostCalls),
		reg.Register(m.outOfBounds),
		reg.Register(live),
	)
	return m, errs.Err
}
