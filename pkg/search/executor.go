package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/knx"
)

// Outcome is the result of one key trial.
type Outcome struct {
	Key      uint32
	Level    uint8 // level answered by the device
	Accepted bool
	Retries  int // transient failures before the answer
}

// Discovery is the terminal result of a search: the key was accepted.
type Discovery struct {
	Key   uint32
	Level uint16 // reported access level, one above the device answer
	Stage keyspace.Stage
	Index uint64
}

func (d Discovery) String() string {
	return fmt.Sprintf("key %s unlocks level %d", keyspace.FormatKey(d.Key), d.Level)
}

// discover turns an accepted outcome for c into a Discovery.
func discover(out Outcome, c keyspace.Candidate) *Discovery {
	return &Discovery{Key: out.Key, Level: uint16(out.Level) + 1, Stage: c.Stage, Index: c.Index}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor submits keys to one device. Transient failures are retried
// indefinitely with RetryInterval between attempts; only ctx ends the wait.
type Executor struct {
	Device        knx.Device
	RetryInterval time.Duration
	Observer      Observer
	Log           *slog.Logger
	Sleep         SleepFunc
}

// NewExecutor returns an executor for dev with the default retry interval.
func NewExecutor(dev knx.Device, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		Device:        dev,
		RetryInterval: DefaultRetryInterval,
		Observer:      NopObserver{},
		Log:           log,
		Sleep:         sleepContext,
	}
}

func (x *Executor) logger() *slog.Logger {
	if x.Log == nil {
		return slog.Default()
	}
	return x.Log
}

// retry runs op until it returns something other than knx.ErrNoResponse.
// transient, when not nil, is told about each failure before the wait.
func (x *Executor) retry(ctx context.Context, log *slog.Logger, transient func(error), op func() error) (int, error) {
	sleep := x.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for retries := 0; ; retries++ {
		err := op()
		if !errors.Is(err, knx.ErrNoResponse) {
			return retries, err
		}
		if ctx.Err() != nil {
			return retries, ctx.Err()
		}

		if transient != nil {
			transient(err)
		}
		log.Warn("no response from device, retrying", "retry", retries+1, "wait", x.RetryInterval)

		if err := sleep(ctx, x.RetryInterval); err != nil {
			return retries + 1, err
		}
	}
}

// Submit tries key until the device answers. Levels 3 and 15 reject the key;
// any other level accepts it. Errors other than knx.ErrNoResponse are fatal.
func (x *Executor) Submit(ctx context.Context, key uint32) (Outcome, error) {
	log := x.logger().With("op", "authorize", "key", keyspace.FormatKey(key))
	transient := func(err error) {
		if x.Observer != nil {
			x.Observer.Transient(key, err)
		}
	}

	var level uint8
	retries, err := x.retry(ctx, log, transient, func() error {
		var err error
		level, err = x.Device.Authorize(ctx, key)
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("search: authorize %s: %w", keyspace.FormatKey(key), err)
	}

	return Outcome{
		Key:      key,
		Level:    level,
		Accepted: !knx.Rejected(level),
		Retries:  retries,
	}, nil
}

// ReadSerial reads the device serial number with the same retry policy.
func (x *Executor) ReadSerial(ctx context.Context) ([]byte, error) {
	var serial []byte
	_, err := x.retry(ctx, x.logger().With("op", "read serial"), nil, func() error {
		var err error
		serial, err = x.Device.ReadSerial(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search: read serial of %s: %w", x.Device.Address(), err)
	}
	return serial, nil
}

// CheckLocked submits LockProbeKey once. A device that accepts it is not
// protected by a key and the acceptance is returned as a Discovery.
func (x *Executor) CheckLocked(ctx context.Context) (*Discovery, error) {
	out, err := x.Submit(ctx, LockProbeKey)
	if err != nil {
		return nil, err
	}
	if out.Accepted {
		return discover(out, keyspace.Candidate{Key: LockProbeKey}), nil
	}
	return nil, nil
}
