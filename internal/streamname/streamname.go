// Package streamname splits a stream name into its category, id, and
// extra segments without validating or storing anything — a pure string
// utility, independent of the rest of the core.
//
// The grammar is `category[-id][:extra]`: the first `-` starts the id
// segment, the first `:` starts the extra segment. A `:` that appears
// before the first `-` takes priority, so "str:eam-12-34" has no id (the
// colon ends the category before any dash is seen) and an extra of
// "eam-12-34".
package streamname

import "strings"

// Name is a parsed view over a stream name string. The zero value is not
// meaningful; construct with [Parse].
type Name struct {
	source string
	idx    int // index of '-', or -1
	exx    int // index of ':', or -1
}

// Parse splits source into its category/id/extra segments.
func Parse(source string) Name {
	idx := strings.IndexByte(source, '-')
	exx := strings.IndexByte(source, ':')

	if idx >= 0 && exx >= 0 && exx < idx {
		idx = -1
	}

	return Name{source: source, idx: idx, exx: exx}
}

// Source returns the original, unparsed string.
func (n Name) Source() string { return n.source }

// Category returns the segment before the first id or extra split.
func (n Name) Category() string {
	switch {
	case n.idx >= 0:
		return n.source[:n.idx]
	case n.exx >= 0:
		return n.source[:n.exx]
	default:
		return n.source
	}
}

// ID returns the id segment, if the stream name has one.
func (n Name) ID() (string, bool) {
	if n.idx < 0 {
		return "", false
	}

	if n.exx < 0 {
		return n.source[n.idx+1:], true
	}

	return n.source[n.idx+1 : n.exx], true
}

// Extra returns the extra segment, if the stream name has one.
func (n Name) Extra() (string, bool) {
	if n.exx < 0 {
		return "", false
	}

	return n.source[n.exx+1:], true
}
