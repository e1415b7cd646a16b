// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build unix

// Package posix links a small set of operating system services into guests
// under the "env" import module.
//
// Every address a guest passes in is checked against its own linear memory
// before the host touches it. Failures are reported to the guest as negative
// errno values and never trap, with the exception of exit.
package posix

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
)

const (
	ModuleName = "env"

	DefaultMaxHandles = 64

	defaultFileMode = 0o644
)

// Guest open flags. They are fixed so guests behave the same on every host.
const (
	FlagReadOnly  = 0x0
	FlagWriteOnly = 0x1
	FlagReadWrite = 0x2
	FlagCreate    = 0x40
	FlagExclusive = 0x80
	FlagTruncate  = 0x200
	FlagAppend    = 0x400

	accessMode = 0x3
	knownFlags = accessMode | FlagCreate | FlagExclusive | FlagTruncate | FlagAppend
)

// errNotSet is returned by get_env for unset variables.
const errNotSet = -1

type options struct {
	lookupEnv  func(string) (string, bool)
	exit       func(code int32)
	maxHandles int
	fileMode   uint32
	log        logging.Logger
}

type Option func(*options)

// WithEnv sets the lookup behind get_env. The default is os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		o.lookupEnv = lookup
	}
}

// WithExit links the exit import. fn is called with the guest's code; if it
// returns, the guest call fails with a *runtime.ExitError. A nil fn
// terminates the process.
func WithExit(fn func(code int32)) Option {
	return func(o *options) {
		if fn == nil {
			fn = func(code int32) { os.Exit(int(code)) }
		}
		o.exit = fn
	}
}

// WithMaxHandles bounds the files a single instance may hold open. n must be
// positive.
func WithMaxHandles(n int) Option {
	return func(o *options) {
		o.maxHandles = n
	}
}

// WithFileMode sets the permissions of files created through open.
func WithFileMode(mode uint32) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithLogger overrides the runtime's logger for host calls.
func WithLogger(log logging.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

type bridge struct {
	options
}

// NewModule returns the import module to pass to runtime.WithImports.
func NewModule(opts ...Option) (*runtime.ImportModule, error) {
	b := &bridge{options: options{
		lookupEnv:  os.LookupEnv,
		maxHandles: DefaultMaxHandles,
		fileMode:   defaultFileMode,
	}}
	for _, opt := range opts {
		opt(&b.options)
	}
	if b.maxHandles <= 0 {
		return nil, fmt.Errorf("%w: max handles must be positive, got %d", runtime.ErrInvalidConfig, b.maxHandles)
	}

	i32 := runtime.I32
	funcs := map[string]runtime.HostFunction{
		"get_env": {
			Params:  []runtime.ValueType{i32, i32},
			Results: []runtime.ValueType{i32, i32},
			Call:    b.getEnv,
		},
		"open": {
			Params:  []runtime.ValueType{i32, i32, i32},
			Results: []runtime.ValueType{i32},
			Call:    b.open,
		},
		"read": {
			Params:  []runtime.ValueType{i32, i32, i32},
			Results: []runtime.ValueType{i32},
			Call:    b.read,
		},
		"close": {
			Params:  []runtime.ValueType{i32},
			Results: []runtime.ValueType{i32},
			Call:    b.close,
		},
	}
	if b.exit != nil {
		funcs["exit"] = runtime.HostFunction{
			Params: []runtime.ValueType{i32},
			Call:   b.exitGuest,
		}
	}
	return &runtime.ImportModule{
		Name:      ModuleName,
		Functions: funcs,
		NewState: func() runtime.InstanceState {
			return newHandleTable(b.maxHandles)
		},
	}, nil
}

func (b *bridge) logger(c *runtime.Caller) logging.Logger {
	if b.log != nil {
		return b.log
	}
	return c.Logger()
}

func handles(c *runtime.Caller) (*handleTable, error) {
	t, ok := c.State().(*handleTable)
	if !ok {
		return nil, errors.New("missing handle table")
	}
	return t, nil
}

// i32 encodes a guest i32 result.
func i32(v int32) uint64 {
	return uint64(uint32(v))
}

func errno(err error) int32 {
	var e unix.Errno
	if errors.As(err, &e) {
		return -int32(e)
	}
	return -int32(unix.EIO)
}

// hostFlags translates guest open flags. O_CLOEXEC is always set so guest
// files never leak into child processes.
func hostFlags(flags uint32) (int, bool) {
	if flags&^knownFlags != 0 {
		return 0, false
	}
	var out int
	switch flags & accessMode {
	case FlagReadOnly:
		out = unix.O_RDONLY
	case FlagWriteOnly:
		out = unix.O_WRONLY
	case FlagReadWrite:
		out = unix.O_RDWR
	default:
		return 0, false
	}
	if flags&FlagCreate != 0 {
		out |= unix.O_CREAT
	}
	if flags&FlagExclusive != 0 {
		out |= unix.O_EXCL
	}
	if flags&FlagTruncate != 0 {
		out |= unix.O_TRUNC
	}
	if flags&FlagAppend != 0 {
		out |= unix.O_APPEND
	}
	return out | unix.O_CLOEXEC, true
}

// get_env(name_ptr, name_len) -> (value_ptr, value_len)
func (b *bridge) getEnv(c *runtime.Caller, args []uint64) ([]uint64, error) {
	fail := func(code int32) ([]uint64, error) {
		return []uint64{i32(code), 0}, nil
	}

	mem, err := c.Memory()
	if err != nil {
		return fail(-int32(unix.EFAULT))
	}
	name, err := mem.ReadString(uint32(args[0]), uint32(args[1]))
	if err != nil {
		return fail(-int32(unix.EFAULT))
	}
	b.logger(c).Debug("get_env", zap.String("name", name))

	value, ok := b.lookupEnv(name)
	if !ok {
		return fail(errNotSet)
	}
	if value == "" {
		return []uint64{0, 0}, nil
	}
	if len(value) > math.MaxInt32 {
		return fail(-int32(unix.E2BIG))
	}

	ptr, err := c.Alloc(uint32(len(value)))
	if errors.Is(err, runtime.ErrMissingAlloc) {
		return fail(-int32(unix.ENOSYS))
	}
	if err != nil {
		// the guest trapped, most likely by running out of points
		return nil, err
	}
	// alloc may have grown memory
	if mem, err = c.Memory(); err != nil {
		return fail(-int32(unix.EFAULT))
	}
	if err := mem.Write(ptr, []byte(value)); err != nil {
		return fail(-int32(unix.EFAULT))
	}
	return []uint64{uint64(ptr), uint64(len(value))}, nil
}

// open(path_ptr, path_len, flags) -> handle
func (b *bridge) open(c *runtime.Caller, args []uint64) ([]uint64, error) {
	t, err := handles(c)
	if err != nil {
		return nil, err
	}
	mem, err := c.Memory()
	if err != nil {
		return []uint64{i32(-int32(unix.EFAULT))}, nil
	}
	path, err := mem.ReadString(uint32(args[0]), uint32(args[1]))
	if err != nil {
		return []uint64{i32(-int32(unix.EFAULT))}, nil
	}
	flags, ok := hostFlags(uint32(args[2]))
	if !ok {
		return []uint64{i32(-int32(unix.EINVAL))}, nil
	}
	if t.len() >= t.limit {
		return []uint64{i32(-int32(unix.EMFILE))}, nil
	}

	log := b.logger(c)
	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Open(path, flags, b.fileMode)
	})
	if err != nil {
		log.Debug("open failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return []uint64{i32(errno(err))}, nil
	}
	h, ok := t.insert(fd)
	if !ok {
		_ = unix.Close(fd)
		return []uint64{i32(-int32(unix.EMFILE))}, nil
	}
	log.Debug("opened file",
		zap.String("path", path),
		zap.Int32("handle", h),
	)
	return []uint64{i32(h)}, nil
}

// read(handle, buf_ptr, buf_len) -> bytes read
func (*bridge) read(c *runtime.Caller, args []uint64) ([]uint64, error) {
	t, err := handles(c)
	if err != nil {
		return nil, err
	}
	mem, err := c.Memory()
	if err != nil {
		return []uint64{i32(-int32(unix.EFAULT))}, nil
	}
	// the buffer is checked before the handle so a bad range never reaches
	// the host
	buf, err := mem.Validate(uint32(args[1]), uint32(args[2]))
	if err != nil {
		return []uint64{i32(-int32(unix.EFAULT))}, nil
	}
	if len(buf) > math.MaxInt32 {
		buf = buf[:math.MaxInt32]
	}
	fd, ok := t.get(int32(uint32(args[0])))
	if !ok {
		return []uint64{i32(-int32(unix.EBADF))}, nil
	}
	n, err := ignoringEINTR(func() (int, error) {
		return unix.Read(fd, buf)
	})
	if err != nil {
		return []uint64{i32(errno(err))}, nil
	}
	return []uint64{i32(int32(n))}, nil
}

// close(handle) -> 0 or -errno
func (b *bridge) close(c *runtime.Caller, args []uint64) ([]uint64, error) {
	t, err := handles(c)
	if err != nil {
		return nil, err
	}
	h := int32(uint32(args[0]))
	fd, ok := t.remove(h)
	if !ok {
		return []uint64{i32(-int32(unix.EBADF))}, nil
	}
	// the handle is gone even if the host close fails
	if err := unix.Close(fd); err != nil {
		b.logger(c).Debug("close failed",
			zap.Int32("handle", h),
			zap.Error(err),
		)
		return []uint64{i32(errno(err))}, nil
	}
	return []uint64{0}, nil
}

// exit(code) does not return to the guest.
func (b *bridge) exitGuest(c *runtime.Caller, args []uint64) ([]uint64, error) {
	code := int32(uint32(args[0]))
	b.logger(c).Info("guest requested exit", zap.Int32("code", code))
	b.exit(code)
	return nil, &runtime.ExitError{Code: code}
}

func ignoringEINTR(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if !errors.Is(err, unix.EINTR) {
			return n, err
		}
	}
}
