// Package search recovers the authorization key of a KNX device by trying
// candidates in three stages, resuming from checkpoints across runs.
//
// # Stages
//
//  1. Curated: a short fixed list of default and previously observed keys.
//  2. Dictionary: keys from a text file, one per line, in file order.
//  3. Full space: every 32-bit key, in the order of a seeded
//     keyspace.Generator.
//
// A stage that was exhausted in an earlier run is skipped. The dictionary and
// full-space stages save their position every few trials, so an interrupted
// run repeats at most that many trials when restarted.
//
// # Workers
//
// Several processes can share the work. Every worker runs with the same seed
// and a distinct keyspace.Shard; each walks the same sequence and submits only
// the logical indices it owns. Checkpoints are kept per shard.
//
// # Usage
//
//	cfg := search.DefaultConfig()
//	cfg.KeyFile = "keys.txt"
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
//	exec := search.NewExecutor(dev, logger)
//	id, err := search.Identify(ctx, exec, cfg)
//	if err != nil {
//		return err
//	}
//
//	progress := make(chan search.Progress, 64)
//	go render(progress)
//
//	res, err := search.NewEngine(cfg, store, id, exec, progress).Run(ctx)
//	close(progress)
//	if res.Discovery != nil {
//		fmt.Println(res.Discovery)
//	}
//
// An accepted key is a result, not an error: Run returns it in
// Result.Discovery and stops. Transient bus failures (knx.ErrNoResponse) are
// retried by the Executor and never reach the caller.
package search
