package messlog

// readRequestKind tags which of the three §4.4 read entry points a
// [ReadRequest] resolves to. The builder below is the Go re-expression of
// the source's typestate-encoded request type (spec §9): the compile-time
// markers become a runtime tag set once at Build.
type readRequestKind int

const (
	readGlobal readRequestKind = iota
	readStream
	readStreamAt
)

// ReadRequest is a built, immutable description of one read. Construct one
// with [NewGlobalRead], [NewStreamRead], or [NewStreamAtRead].
type ReadRequest struct {
	kind         readRequestKind
	globalPos    uint64
	streamFilter string
	streamName   string
	streamPos    *StreamPos
	limit        int
}

// GlobalReadBuilder builds a global-stream scan request.
type GlobalReadBuilder struct {
	req ReadRequest
}

// NewGlobalRead starts a forward scan of the global stream beginning at
// globalPos (0 means "from the first record").
func NewGlobalRead(globalPos uint64) *GlobalReadBuilder {
	return &GlobalReadBuilder{req: ReadRequest{kind: readGlobal, globalPos: globalPos}}
}

// WithStreamFilter restricts the scan to records whose stream name equals
// name, applied as a post-filter over the global scan (spec §4.4).
func (b *GlobalReadBuilder) WithStreamFilter(name string) *GlobalReadBuilder {
	b.req.streamFilter = name

	return b
}

// WithLimit bounds the number of records returned. Clamped to [1, 10000]:
// 0 selects DefaultLimit (1000), negative values become 1.
func (b *GlobalReadBuilder) WithLimit(n int) *GlobalReadBuilder {
	b.req.limit = n

	return b
}

// Build finalizes the request.
func (b *GlobalReadBuilder) Build() ReadRequest { return b.req }

// StreamReadBuilder builds a per-stream scan request.
type StreamReadBuilder struct {
	req ReadRequest
}

// NewStreamRead starts a forward scan of name's contiguous key range from
// its beginning.
func NewStreamRead(name string) *StreamReadBuilder {
	return &StreamReadBuilder{req: ReadRequest{kind: readStream, streamName: name}}
}

// After starts the scan just past pos instead of from the beginning.
func (b *StreamReadBuilder) After(pos StreamPos) *StreamReadBuilder {
	b.req.streamPos = &pos

	return b
}

// WithLimit bounds the number of records returned. Clamped to [1, 10000]:
// 0 selects DefaultLimit (1000), negative values become 1.
func (b *StreamReadBuilder) WithLimit(n int) *StreamReadBuilder {
	b.req.limit = n

	return b
}

// Build finalizes the request.
func (b *StreamReadBuilder) Build() ReadRequest { return b.req }

// NewStreamAtRead builds a request for the latest record in name: a reverse
// scan from the stream's sentinel max key, returning at most one item
// (spec §4.4 "latest in stream").
func NewStreamAtRead(name string) ReadRequest {
	return ReadRequest{kind: readStreamAt, streamName: name, limit: 1}
}
