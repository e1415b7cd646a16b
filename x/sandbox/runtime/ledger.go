// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"go.uber.org/zap"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

// RemainingPoints reads the ledger. It may be called after a trap, and after
// Close, when it returns the value the ledger held at that point.
func (i *Instance) RemainingPoints() int64 {
	if i.closed {
		return i.finalPoints
	}
	v, err := i.inner.getGlobal(metering.RemainingPointsExport)
	if err != nil {
		i.rt.log.Error("failed to read ledger", zap.Error(err))
		return 0
	}
	return int64(v)
}

// SetRemainingPoints overwrites the ledger and clears the exhausted flag.
// Negative values are allowed; the next metered block then traps.
func (i *Instance) SetRemainingPoints(points int64) error {
	if i.closed {
		return ErrInstanceClosed
	}
	if err := i.inner.setGlobal(metering.RemainingPointsExport, uint64(points)); err != nil {
		return err
	}
	return i.inner.setGlobal(metering.PointsExhaustedExport, 0)
}

// Exhausted reports whether the last call trapped in a metering check and
// the ledger has not been reset since.
func (i *Instance) Exhausted() bool {
	if i.closed {
		return false
	}
	v, err := i.inner.getGlobal(metering.PointsExhaustedExport)
	if err != nil {
		i.rt.log.Error("failed to read exhausted flag", zap.Error(err))
		return false
	}
	return v != 0
}

func GetRemainingPoints(inst *Instance) int64 {
	return inst.RemainingPoints()
}

func SetRemainingPoints(inst *Instance, points int64) error {
	return inst.SetRemainingPoints(points)
}
