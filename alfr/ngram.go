package alfr

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

type ngramEntry struct {
	prefix []int
	next   int
}

// ngramIndex records every n-gram seen in a sequence, keyed by the hash of
// its first n-1 tokens, so the tokens that would complete a repeated n-gram
// can be looked up in one step.
type ngramIndex struct {
	n    int
	seen map[uint64][]ngramEntry
}

func newNGramIndex(n int) *ngramIndex {
	return &ngramIndex{
		n:    n,
		seen: make(map[uint64][]ngramEntry),
	}
}

// hashPrefix computes the hash of a token window
func hashPrefix(tokenIDs []int) uint64 {
	h := xxhash.New()
	buf := make([]byte, 4)
	for _, tokenID := range tokenIDs {
		binary.LittleEndian.PutUint32(buf, uint32(tokenID))
		h.Write(buf)
	}
	return h.Sum64()
}

// addAll indexes every complete n-gram of tokenIDs
func (x *ngramIndex) addAll(tokenIDs []int) {
	if x.n <= 0 {
		return
	}
	for end := x.n; end <= len(tokenIDs); end++ {
		x.add(tokenIDs[end-x.n : end])
	}
}

// addLast indexes the n-gram ending at the last token
func (x *ngramIndex) addLast(tokenIDs []int) {
	if x.n <= 0 || len(tokenIDs) < x.n {
		return
	}
	x.add(tokenIDs[len(tokenIDs)-x.n:])
}

func (x *ngramIndex) add(gram []int) {
	prefix := make([]int, x.n-1)
	copy(prefix, gram[:x.n-1])
	next := gram[x.n-1]

	key := hashPrefix(prefix)
	for _, e := range x.seen[key] {
		if e.next == next && slices.Equal(e.prefix, prefix) {
			return
		}
	}
	x.seen[key] = append(x.seen[key], ngramEntry{prefix: prefix, next: next})
}

// banned returns the tokens that would repeat an n-gram already present in
// tokenIDs if appended next.
func (x *ngramIndex) banned(tokenIDs []int) []int {
	if x.n <= 0 || len(tokenIDs)+1 < x.n {
		return nil
	}
	prefix := tokenIDs[len(tokenIDs)-(x.n-1):]

	var out []int
	for _, e := range x.seen[hashPrefix(prefix)] {
		if slices.Equal(e.prefix, prefix) {
			out = append(out, e.next)
		}
	}
	return out
}
