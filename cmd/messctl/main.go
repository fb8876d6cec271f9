// messctl is a small CLI for interacting with a messlog store.
//
// Usage:
//
//	messctl [--backend bolt|sqlite|mem] [--db path] <command> [args]
//
// Commands:
//
//	put <stream> <data> [--type T] [--metadata M] [--expect N]
//	scan [--stream name] [--from pos] [--limit n]
//	tail [--stream name] [--limit n]
//	repl
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/messlog/internal/kvstore"
	"github.com/calvinalkan/messlog/internal/kvstore/boltkv"
	"github.com/calvinalkan/messlog/internal/kvstore/memkv"
	"github.com/calvinalkan/messlog/internal/kvstore/sqlitekv"
	"github.com/calvinalkan/messlog/pkg/fs"
	"github.com/calvinalkan/messlog/pkg/messlog"

	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	globalFlags := flag.NewFlagSet("messctl", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)

	backend := globalFlags.String("backend", "bolt", "storage backend: bolt|sqlite|mem")
	dbPath := globalFlags.String("db", "messlog.db", "path to the store file (ignored for --backend mem)")

	if err := globalFlags.Parse(args[1:]); err != nil {
		return 1
	}

	rest := globalFlags.Args()
	if len(rest) == 0 {
		printUsage(os.Stderr)

		return 1
	}

	store, closeStore, err := openStore(*backend, *dbPath)
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

	cmdName := rest[0]
	cmdArgs := rest[1:]

	switch cmdName {
	case "put":
		return cmdPut(engine, cmdArgs)
	case "scan":
		return cmdScan(engine, cmdArgs)
	case "tail":
		return cmdTail(engine, cmdArgs)
	case "repl":
		return cmdRepl(engine)
	default:
		fmt.Fprintln(os.Stderr, "error: unknown command:", cmdName)
		printUsage(os.Stderr)

		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: messctl [--backend bolt|sqlite|mem] [--db path] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  put <stream> <data> [--type T] [--metadata M] [--expect N]")
	fmt.Fprintln(w, "  scan [--stream name] [--from pos] [--limit n]")
	fmt.Fprintln(w, "  tail [--stream name] [--limit n]")
	fmt.Fprintln(w, "  repl")
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

func cmdPut(engine *messlog.Engine, args []string) int {
	flags := flag.NewFlagSet("put", flag.ContinueOnError)

	msgType := flags.String("type", "", "message type")
	metadata := flags.String("metadata", "", "metadata bytes")
	expect := flags.Int64("expect", -1, "expected stream position before this write (omit for first write)")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	rest := flags.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "usage: messctl put <stream> <data> [flags]")

		return 1
	}

	msg := messlog.WriteMessage{
		StreamName:  rest[0],
		MessageType: *msgType,
		Data:        []byte(rest[1]),
		Metadata:    []byte(*metadata),
	}

	if *expect >= 0 {
		pos := messlog.Serial(uint64(*expect))
		msg.ExpectedPosition = &pos
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := engine.PutMessage(ctx, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	fmt.Printf("global=%d stream=%s\n", result.Global, result.Stream)

	return 0
}

func cmdScan(engine *messlog.Engine, args []string) int {
	flags := flag.NewFlagSet("scan", flag.ContinueOnError)

	streamFilter := flags.String("stream", "", "restrict to a single stream")
	from := flags.Uint64("from", 0, "global position to start from")
	limit := flags.Int("limit", 0, "max records (0 means default)")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := messlog.NewGlobalRead(*from).WithStreamFilter(*streamFilter).WithLimit(*limit).Build()

	items, err := engine.FetchMessages(ctx, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	return printItems(items)
}

func cmdTail(engine *messlog.Engine, args []string) int {
	flags := flag.NewFlagSet("tail", flag.ContinueOnError)

	streamFilter := flags.String("stream", "", "restrict to a single stream")
	limit := flags.Int("limit", 20, "max records")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := engine.FetchRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	if *streamFilter != "" {
		filtered := items[:0]

		for _, it := range items {
			if it.Err == nil && it.Message.StreamName != *streamFilter {
				continue
			}

			filtered = append(filtered, it)
		}

		items = filtered
	}

	return printItems(items)
}

func printItems(items []messlog.Item) int {
	exitCode := 0

	for _, it := range items {
		if it.Err != nil {
			fmt.Fprintln(os.Stderr, "error:", it.Err)

			exitCode = 1

			continue
		}

		m := it.Message
		fmt.Printf("%d\t%s\t%s\t%s\t%q\n", m.GlobalPosition, m.StreamPosition, m.StreamName, m.MessageType, m.Data)
	}

	return exitCode
}
