package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/calvinalkan/messlog/pkg/messlog"
)

// repl is an interactive shell over a live engine, mirroring the teacher's
// liner-based REPL shape: a prompt loop, a persisted history file, and a
// flat command dispatch switch.
type repl struct {
	engine   *messlog.Engine
	liner    *liner.State
	histPath string
}

var replCommands = []string{"put", "scan", "tail", "help", "exit", "quit"}

func cmdRepl(engine *messlog.Engine) int {
	r := &repl{engine: engine}

	if home, err := os.UserHomeDir(); err == nil {
		r.histPath = filepath.Join(home, ".messctl_history")
	}

	return r.run()
}

func (r *repl) run() int {
	r.liner = liner.NewLiner()
	defer func() { _ = r.liner.Close() }()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if r.histPath != "" {
		if f, err := os.Open(r.histPath); err == nil {
			_, _ = r.liner.ReadHistory(f)
			_ = f.Close()
		}
	}

	for {
		line, err := r.liner.Prompt("messctl> ")
		if err != nil {
			// io.EOF on Ctrl-D, liner.ErrPromptAborted on Ctrl-C.
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		fields := strings.Fields(line)

		if r.dispatch(fields[0], fields[1:]) {
			break
		}
	}

	if r.histPath != "" {
		if f, err := os.Create(r.histPath); err == nil {
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}

	return 0
}

// dispatch runs one command and reports whether the REPL should exit.
func (r *repl) dispatch(cmd string, args []string) bool {
	switch cmd {
	case "exit", "quit":
		return true
	case "help":
		r.cmdHelp()
	case "put":
		r.cmdPut(args)
	case "scan":
		r.cmdScan(args)
	case "tail":
		r.cmdTail(args)
	default:
		fmt.Printf("unknown command: %s (try 'help')\n", cmd)
	}

	return false
}

func (r *repl) cmdHelp() {
	fmt.Println("commands:")
	fmt.Println("  put <stream> <data>        append a message")
	fmt.Println("  scan [stream] [from]       scan the global stream, optionally filtered")
	fmt.Println("  tail [limit]               show the most recently staged writes")
	fmt.Println("  exit | quit                leave the REPL")
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <stream> <data>")

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pos, err := r.engine.PutMessage(ctx, messlog.WriteMessage{
		StreamName: args[0],
		Data:       []byte(strings.Join(args[1:], " ")),
	})
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Printf("global=%d stream=%s\n", pos.Global, pos.Stream)
}

func (r *repl) cmdScan(args []string) {
	var (
		streamFilter string
		from         uint64
	)

	if len(args) > 0 {
		streamFilter = args[0]
	}

	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Println("error: bad from position:", err)

			return
		}

		from = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := messlog.NewGlobalRead(from).WithStreamFilter(streamFilter).Build()

	items, err := r.engine.FetchMessages(ctx, req)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	r.printItems(items)
}

func (r *repl) cmdTail(args []string) {
	limit := 20

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("error: bad limit:", err)

			return
		}

		limit = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := r.engine.FetchRecent(ctx, limit)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	r.printItems(items)
}

func (r *repl) printItems(items []messlog.Item) {
	for _, it := range items {
		if it.Err != nil {
			fmt.Println("error:", it.Err)

			continue
		}

		m := it.Message
		fmt.Printf("%d\t%s\t%s\t%s\t%q\n", m.GlobalPosition, m.StreamPosition, m.StreamName, m.MessageType, m.Data)
	}
}

func (r *repl) completer(line string) []string {
	var out []string

	for _, c := range replCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}
