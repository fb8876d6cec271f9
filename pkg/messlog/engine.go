package messlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/calvinalkan/messlog/internal/bbpp"
	"github.com/calvinalkan/messlog/internal/codec"
	"github.com/calvinalkan/messlog/internal/hlc"
	"github.com/calvinalkan/messlog/internal/kvstore"
)

// DefaultInboxCapacity is the default bound on the engine's request channel
// (spec §4.7).
const DefaultInboxCapacity = 4096

// DefaultStagingCapacity is the default byte capacity of the in-process
// staging ring (spec §4.5) the actor keeps alongside the durable store.
const DefaultStagingCapacity = 1 << 20 // 1 MiB

// DefaultProtectorSlots is the default size of the staging ring's
// hazard-pointer pool (spec §4.6).
const DefaultProtectorSlots = 16

// Engine is the thread-safe handle over a single-writer store (spec §4.7).
// It owns the KV handle, the HLC, and the writer's serialization state;
// any number of goroutines may call [Engine.PutMessage] and
// [Engine.FetchMessages] concurrently — requests are queued on a bounded
// channel and dequeued one at a time by a single background loop, which is
// what makes the writer's cached "last global" position sound without a
// shared mutex (spec §9 design note).
type Engine struct {
	inbox chan actorRequest

	// staging mirrors every committed global record into an in-process
	// bipartite ring buffer (spec §4.5) so FetchRecent can serve hot reads
	// without a KV round trip. The actor loop is the ring's sole writer,
	// matching the single-producer contract it enforces internally.
	staging *bbpp.BBPP

	closeOnce sync.Once
	cancel    chan struct{}
	done      chan struct{}
}

type actorRequestKind int

const (
	actorWrite actorRequestKind = iota
	actorRead
	actorReadRecent
)

type actorRequest struct {
	kind  actorRequestKind
	write WriteMessage
	read  ReadRequest
	limit int
	reply chan actorResponse
}

type actorResponse struct {
	position Position
	items    []Item
	err      error
}

// Option configures [Open].
type Option func(*engineConfig)

type engineConfig struct {
	inboxCapacity   int
	stagingCapacity uint64
	protectorSlots  int
}

// WithInboxCapacity overrides [DefaultInboxCapacity].
func WithInboxCapacity(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.inboxCapacity = n
		}
	}
}

// WithStagingCapacity overrides [DefaultStagingCapacity], the byte size of
// the in-process staging ring.
func WithStagingCapacity(n uint64) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.stagingCapacity = n
		}
	}
}

// WithProtectorSlots overrides [DefaultProtectorSlots], the size of the
// staging ring's hazard-pointer pool.
func WithProtectorSlots(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.protectorSlots = n
		}
	}
}

// Open starts an engine actor over store. It seeds the HLC's high-water
// mark from the `ord` of the highest committed global record, if any, so
// that `ord` does not regress across a process restart (spec §9
// supplemented feature, closing the gap left by spec.md §4.1's
// "process-lived" framing).
func Open(store kvstore.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("open: %w", errNilStore)
	}

	cfg := engineConfig{
		inboxCapacity:   DefaultInboxCapacity,
		stagingCapacity: DefaultStagingCapacity,
		protectorSlots:  DefaultProtectorSlots,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := hlc.New()

	if err := seedClock(store, clock); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	staging := bbpp.New(cfg.stagingCapacity, cfg.protectorSlots)
	if err := staging.TryWriter(); err != nil {
		// Unreachable: staging is freshly constructed and has never been
		// leased, but treat a lease failure as fatal rather than silently
		// running without the fast path.
		return nil, fmt.Errorf("open: acquire staging writer lease: %w", err)
	}

	e := &Engine{
		inbox:   make(chan actorRequest, cfg.inboxCapacity),
		staging: staging,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	go e.loop(newWriter(store, clock), newReader(store))

	return e, nil
}

func seedClock(store kvstore.Store, clock *hlc.Clock) error {
	it := store.ScanReverse(kvstore.Global, nil)
	defer func() { _ = it.Close() }()

	it.Next()
	if !it.Valid() {
		if err := it.Err(); err != nil {
			return fmt.Errorf("seed clock: %w", err)
		}

		return nil
	}

	rec, err := codec.DecodeGlobalRecord(it.Value())
	if err != nil {
		return fmt.Errorf("seed clock: %w", err)
	}

	clock.SeedFrom(hlc.TickFromUint64(rec.Ord))

	return nil
}

// loop is the actor's single-threaded dispatch: dequeue one request,
// dispatch it to the writer or reader, reply, repeat. It is the only
// goroutine that ever touches writer, which is what lets writer cache
// "last global" without synchronization (spec §9).
func (e *Engine) loop(w *writer, r *reader) {
	defer close(e.done)

	for {
		select {
		case <-e.cancel:
			e.drainCancelled()

			return
		case req := <-e.inbox:
			e.dispatch(w, r, req)
		}
	}
}

func (e *Engine) dispatch(w *writer, r *reader, req actorRequest) {
	select {
	case <-e.cancel:
		req.reply <- actorResponse{err: ErrCancelled}

		return
	default:
	}

	switch req.kind {
	case actorWrite:
		pos, encoded, err := w.write(req.write)
		if err == nil {
			e.stage(pos.Global, encoded)
		}

		req.reply <- actorResponse{position: pos, err: err}
	case actorRead:
		items := dispatchRead(r, req.read)
		req.reply <- actorResponse{items: items}
	case actorReadRecent:
		req.reply <- actorResponse{items: e.fetchRecent(req.limit)}
	}
}

// stage mirrors a freshly committed global record into the staging ring.
// The ring is a best-effort hot-read cache, not the durable record of
// truth: a push failure (e.g. an entry larger than the configured arena)
// never fails the write that already committed to the store.
func (e *Engine) stage(globalPos uint64, encodedGlobal []byte) {
	entry := make([]byte, codec.GlobalKeyLen+len(encodedGlobal))
	copy(entry, codec.GlobalKey(globalPos).Bytes())
	copy(entry[codec.GlobalKeyLen:], encodedGlobal)

	_, _ = e.staging.Push(entry)
}

// fetchRecent drains up to limit of the most recently staged global
// records, oldest first, via a protected reader lease so the actor's next
// push cannot reclaim an entry mid-scan.
func (e *Engine) fetchRecent(limit int) []Item {
	limit = clampLimit(limit)

	reader := e.staging.NewReader()
	defer reader.Release()

	var all []Item

	for {
		entry, ok := reader.Next()
		if !ok {
			break
		}

		buf := make([]byte, len(entry))
		copy(buf, entry)

		key, rec, err := decodeGlobalRow(buf[:codec.GlobalKeyLen], buf[codec.GlobalKeyLen:])
		if err != nil {
			all = append(all, Item{Err: err})

			continue
		}

		all = append(all, Item{Message: globalRecordToMessage(key, rec)})
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	return all
}

func dispatchRead(r *reader, req ReadRequest) []Item {
	switch req.kind {
	case readGlobal:
		return r.GlobalMessages(req.globalPos, req.streamFilter, req.limit)
	case readStream:
		return r.StreamMessages(req.streamName, req.streamPos, req.limit)
	case readStreamAt:
		msg, ok, err := r.LatestInStream(req.streamName)
		if err != nil {
			return []Item{{Err: err}}
		}

		if !ok {
			return nil
		}

		return []Item{{Message: msg}}
	default:
		return []Item{{Err: fmt.Errorf("%w: unknown read request kind", ErrInconceivable)}}
	}
}

// drainCancelled replies [ErrCancelled] to every request still queued once
// the loop is terminating, so no client is left waiting on a reply that
// will never come (spec §4.7 "responses are delivered even if the client
// dropped the receiver" — the symmetric case of a server-side shutdown).
func (e *Engine) drainCancelled() {
	for {
		select {
		case req := <-e.inbox:
			req.reply <- actorResponse{err: ErrCancelled}
		default:
			return
		}
	}
}

// PutMessage appends msg, blocking until the actor has processed the
// request or ctx is cancelled.
func (e *Engine) PutMessage(ctx context.Context, msg WriteMessage) (Position, error) {
	resp, err := e.send(ctx, actorRequest{kind: actorWrite, write: msg})
	if err != nil {
		return Position{}, err
	}

	return resp.position, resp.err
}

// FetchMessages runs req and returns its materialized results, blocking
// until the actor has processed the request or ctx is cancelled. Per-item
// errors are carried inside the returned slice, not as the method's error
// return (spec §7 propagation policy); the method's own error return is
// reserved for request-level failures such as cancellation.
func (e *Engine) FetchMessages(ctx context.Context, req ReadRequest) ([]Item, error) {
	resp, err := e.send(ctx, actorRequest{kind: actorRead, read: req})
	if err != nil {
		return nil, err
	}

	return resp.items, resp.err
}

// FetchRecent returns up to limit of the most recently committed global
// records directly from the in-process staging ring (spec §4.5), bypassing
// the durable store. Unlike [Engine.FetchMessages], this is a best-effort
// hot-read path: records reclaimed from the ring before this call runs are
// simply absent rather than surfaced as an error.
func (e *Engine) FetchRecent(ctx context.Context, limit int) ([]Item, error) {
	resp, err := e.send(ctx, actorRequest{kind: actorReadRecent, limit: limit})
	if err != nil {
		return nil, err
	}

	return resp.items, resp.err
}

func (e *Engine) send(ctx context.Context, req actorRequest) (actorResponse, error) {
	if ctx == nil {
		return actorResponse{}, fmt.Errorf("%w: context is nil", ErrInconceivable)
	}

	select {
	case <-e.cancel:
		return actorResponse{}, ErrCancelled
	default:
	}

	req.reply = make(chan actorResponse, 1)

	select {
	case e.inbox <- req:
	case <-e.cancel:
		return actorResponse{}, ErrCancelled
	case <-ctx.Done():
		return actorResponse{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return actorResponse{}, ctx.Err()
	}
}

// Kill trips the cancellation token. The actor stops dequeuing new requests
// at the next loop boundary; any write already dispatched runs to
// completion (its atomic batch either fully commits or fully fails).
// Idempotent.
func (e *Engine) Kill() {
	e.closeOnce.Do(func() { close(e.cancel) })
}

// Wait blocks until the actor loop has fully terminated after [Engine.Kill].
func (e *Engine) Wait() {
	<-e.done
}
