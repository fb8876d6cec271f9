// messctl-bench drives sustained concurrent put/FetchRecent load against a messlog
// engine and reports throughput. Unlike the ticket tool's hyperfine-driven
// harness (messlog has no per-operation external binary to shell out to),
// this is an in-process worker pool: a fixed number of writer goroutines and
// reader goroutines hammer one engine for a fixed duration, modeled on the
// ticket tool's seed-bench worker-pool shape.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/messlog/internal/kvstore"
	"github.com/calvinalkan/messlog/internal/kvstore/boltkv"
	"github.com/calvinalkan/messlog/internal/kvstore/memkv"
	"github.com/calvinalkan/messlog/internal/kvstore/sqlitekv"
	"github.com/calvinalkan/messlog/pkg/fs"
	"github.com/calvinalkan/messlog/pkg/messlog"
)

type config struct {
	backend  string
	dbPath   string
	duration time.Duration
	writers  int
	readers  int
	streams  int
	payload  int
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config{}

	flags := flag.NewFlagSet("messctl-bench", flag.ContinueOnError)
	flags.StringVar(&cfg.backend, "backend", "bolt", "storage backend: bolt|sqlite|mem")
	flags.StringVar(&cfg.dbPath, "db", "messctl-bench.db", "path to the store file (ignored for --backend mem)")
	flags.DurationVar(&cfg.duration, "duration", 5*time.Second, "how long to run the load")
	flags.IntVar(&cfg.writers, "writers", 4, "number of concurrent writer goroutines")
	flags.IntVar(&cfg.readers, "readers", 4, "number of concurrent reader goroutines tailing the staging ring")
	flags.IntVar(&cfg.streams, "streams", 16, "number of distinct streams to spread writes across")
	flags.IntVar(&cfg.payload, "payload", 128, "message payload size in bytes")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return 1
	}

	store, closeStore, err := openStore(cfg.backend, cfg.dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	defer closeStore()

	engine, err := messlog.Open(store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	defer func() {
		engine.Kill()
		engine.Wait()
	}()

	result := runLoad(engine, cfg)

	fmt.Printf("backend=%s duration=%s writers=%d readers=%d streams=%d payload=%dB\n",
		cfg.backend, cfg.duration, cfg.writers, cfg.readers, cfg.streams, cfg.payload)
	fmt.Printf("writes: %d (%.0f/s)\n", result.writes, float64(result.writes)/cfg.duration.Seconds())
	fmt.Printf("writeErrors: %d\n", result.writeErrors)
	fmt.Printf("tails: %d (%.0f/s), staged items observed: %d\n",
		result.tails, float64(result.tails)/cfg.duration.Seconds(), result.stagedSeen)

	return 0
}

func openStore(backend, path string) (kvstore.Store, func(), error) {
	switch backend {
	case "mem":
		store := memkv.New()

		return store, func() {}, nil
	case "bolt":
		store, err := boltkv.Open(path, fs.NewReal())
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt store: %w", err)
		}

		return store, func() { _ = store.Close() }, nil
	case "sqlite":
		store, err := sqlitekv.Open(context.Background(), path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}

		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q: want bolt, sqlite, or mem", backend)
	}
}

type loadResult struct {
	writes      int64
	writeErrors int64
	tails       int64
	stagedSeen  int64
}

// runLoad fans writer and reader goroutines out over the engine for
// cfg.duration, mirroring seed-bench.go's fixed-worker-pool-over-a-channel
// shape but time-bounded rather than count-bounded, since the point here is
// sustained concurrent pressure on the staging ring (spec §4.5) rather than
// seeding a fixed dataset.
func runLoad(engine *messlog.Engine, cfg config) loadResult {
	var result loadResult

	stop := make(chan struct{})
	payload := make([]byte, cfg.payload)

	var wg sync.WaitGroup

	for w := 0; w < cfg.writers; w++ {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			ctx := context.Background()
			stream := fmt.Sprintf("stream-%d", worker%cfg.streams)

			for {
				select {
				case <-stop:
					return
				default:
				}

				_, err := engine.PutMessage(ctx, messlog.WriteMessage{
					StreamName: stream,
					Data:       payload,
				})
				if err != nil {
					atomic.AddInt64(&result.writeErrors, 1)

					continue
				}

				atomic.AddInt64(&result.writes, 1)
			}
		}(w)
	}

	for r := 0; r < cfg.readers; r++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ctx := context.Background()

			for {
				select {
				case <-stop:
					return
				default:
				}

				items, err := engine.FetchRecent(ctx, 100)
				if err != nil {
					continue
				}

				atomic.AddInt64(&result.tails, 1)
				atomic.AddInt64(&result.stagedSeen, int64(len(items)))
			}
		}()
	}

	time.Sleep(cfg.duration)
	close(stop)
	wg.Wait()

	return result
}
