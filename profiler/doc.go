// Package profiler observes a stm.Atomically-based program from the
// outside: Prometheus counters and histograms for transaction throughput
// and conflict rate, a bounded recent-conflict history for debugging, and
// human-readable names attached to goroutines, transactions, and cells.
//
// Wire it in once per process:
//
//	rec, err := profiler.NewRecorder(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rec.Close()
//
//	_, err = stm.Atomically(fn, stm.WithHooks(rec))
package profiler
