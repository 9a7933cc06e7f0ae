package search

import (
	"context"
	"time"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
)

// BenchmarkResult reports the measured trial rate.
type BenchmarkResult struct {
	Tries     int
	Elapsed   time.Duration
	Retries   int
	Discovery *Discovery
}

// PerKey returns the mean time of one trial.
func (r BenchmarkResult) PerKey() time.Duration {
	if r.Tries == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Tries)
}

// Rate returns trials per second.
func (r BenchmarkResult) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Tries) / r.Elapsed.Seconds()
}

// Benchmark submits key tries times and measures the elapsed time. tick, when
// not nil, is called after every trial with the number done so far. An
// accepted key stops the benchmark and is returned as a Discovery.
func Benchmark(ctx context.Context, x *Executor, key uint32, tries int, tick func(done int)) (BenchmarkResult, error) {
	if tries <= 0 {
		tries = DefaultBenchmarkTries
	}

	var res BenchmarkResult
	start := time.Now()
	for i := 0; i < tries; i++ {
		out, err := x.Submit(ctx, key)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Tries++
		res.Retries += out.Retries
		if tick != nil {
			tick(res.Tries)
		}
		if out.Accepted {
			res.Discovery = discover(out, keyspace.Candidate{Key: key, Index: uint64(i)})
			break
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Identify reads the device serial and returns the checkpoint identity of the
// device for cfg.
func Identify(ctx context.Context, x *Executor, cfg *Config) (checkpoint.Identity, error) {
	serial, err := x.ReadSerial(ctx)
	if err != nil {
		return checkpoint.Identity{}, err
	}
	return checkpoint.Identity{
		Address: x.Device.Address().String(),
		Serial:  serial,
		Seed:    cfg.Seed,
		Shard:   cfg.Shard,
	}, nil
}
