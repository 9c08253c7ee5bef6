// Package prefixtree provides an insert-only mapping from non-empty string
// keys to values, supporting shortest, exact, and longest prefix queries over
// a region of text.
//
// The structure is a hybrid of a trie and a radix tree stored in two flat
// arrays. Each node carries one inline "fast child" edge for the common
// unary-continuation case plus an overflow list for genuine branching, which
// keeps descent mostly pointer-free and cache-friendly. Keys whose tail has
// no siblings are not expanded into one node per character; the tail stays
// implicit in the match record and is verified against the input on lookup.
//
// A Tree is not safe for concurrent mutation. Reads are safe only while no
// writer is active; writers are assumed single-threaded. Keys containing NUL
// code points have undefined behavior.
package prefixtree

import (
	"errors"
	"iter"
)

var (
	// ErrEmptyKey is returned by Insert for a zero-length key.
	ErrEmptyKey = errors.New("prefixtree: empty key")

	// ErrDuplicateKey is returned by Insert under FailOnExisting when the
	// key is already present.
	ErrDuplicateKey = errors.New("prefixtree: duplicate key")

	// ErrKeyNotFound is returned by Get when the key is absent.
	ErrKeyNotFound = errors.New("prefixtree: key not found")

	// ErrOutOfRange is returned for a negative offset or length, a region
	// extending past the end of the text, or an index past the match count.
	ErrOutOfRange = errors.New("prefixtree: out of range")
)

// OnExisting selects how Insert treats a key that is already present.
type OnExisting int

const (
	// FailOnExisting makes Insert return ErrDuplicateKey.
	FailOnExisting OnExisting = iota

	// OverwriteExisting makes Insert replace the stored value.
	OverwriteExisting

	// SkipExisting makes Insert leave the stored value untouched.
	SkipExisting
)

const (
	// noRune marks an absent fast-child edge. Valid edges are always
	// non-negative code points.
	noRune rune = -1

	// noMatch and noNode mark absent indices into the match and node arrays.
	noMatch int32 = -1
	noNode  int32 = -1

	// asciiRootSize is the span of the direct root table. First characters
	// below this bound resolve without a map lookup.
	asciiRootSize = 128

	// defaultMatchCapacity pre-sizes the match array for trees built
	// without an explicit capacity.
	defaultMatchCapacity = 8

	// nodesPerKeyEstimate sizes the node array relative to a known key
	// count. Shared prefixes keep the real ratio below two in practice.
	nodesPerKeyEstimate = 2

	// asciiCaseBit is the bit distinguishing ASCII upper and lower case.
	asciiCaseBit = 0x20
)

// Match is a stored (key, value) pair. Matches are held in insertion order
// and are never removed.
type Match[V any] struct {
	Key   string
	Value V

	// runeLen caches the key length in code points; lookups compare it
	// against traversal depth.
	runeLen int
}

// node is one character position on the path from the root. The fast child
// is the single inline outgoing edge; overflow holds any further children.
type node struct {
	ch           rune
	fastChildCh  rune
	fastChildIdx int32
	matchIdx     int32
	overflow     []int32
}

// Tree maps non-empty string keys to values of type V.
type Tree[V any] struct {
	matches []Match[V]
	nodes   []node

	// asciiRoots maps an ASCII first character to its root node;
	// otherRoots covers the rest of the code-point space and is allocated
	// on first use.
	asciiRoots [asciiRootSize]int32
	otherRoots map[rune]int32

	ignoreCase bool
}

// Option configures a Tree at construction.
type Option[V any] func(*Tree[V])

// WithMatchCapacity pre-allocates the match record array.
func WithMatchCapacity[V any](n int) Option[V] {
	return func(t *Tree[V]) {
		t.matches = make([]Match[V], 0, max(n, 0))
	}
}

// WithNodeCapacity pre-allocates the node array.
func WithNodeCapacity[V any](n int) Option[V] {
	return func(t *Tree[V]) {
		t.nodes = make([]node, 0, max(n, 0))
	}
}

// WithIgnoreCase enables ASCII-range case-insensitive key comparison. The
// behavior of case-insensitive comparison against non-ASCII letters is
// unspecified. The mode must not change after the first insert.
func WithIgnoreCase[V any](ignore bool) Option[V] {
	return func(t *Tree[V]) {
		t.ignoreCase = ignore
	}
}

// New creates an empty tree.
func New[V any](opts ...Option[V]) *Tree[V] {
	t := &Tree[V]{
		matches: make([]Match[V], 0, defaultMatchCapacity),
	}

	for i := range t.asciiRoots {
		t.asciiRoots[i] = noNode
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewFromMap creates a tree holding every entry of items. The match array is
// sized to the input and the node array to twice the input unless overridden
// by options.
func NewFromMap[V any](items map[string]V, opts ...Option[V]) (*Tree[V], error) {
	sized := []Option[V]{
		WithMatchCapacity[V](len(items)),
		WithNodeCapacity[V](nodesPerKeyEstimate * len(items)),
	}

	t := New(append(sized, opts...)...)

	for key, value := range items {
		if _, err := t.Insert(key, value, FailOnExisting); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Len returns the number of stored matches.
func (t *Tree[V]) Len() int {
	return len(t.matches)
}

// At returns the i-th match in insertion order.
func (t *Tree[V]) At(i int) (Match[V], error) {
	if i < 0 || i >= len(t.matches) {
		return Match[V]{}, ErrOutOfRange
	}

	return t.matches[i], nil
}

// All iterates the matches in insertion order. The length is snapshotted at
// iterator creation; mutating the tree during iteration is undefined.
func (t *Tree[V]) All() iter.Seq2[int, Match[V]] {
	return func(yield func(int, Match[V]) bool) {
		n := len(t.matches)

		for i := range n {
			if !yield(i, t.matches[i]) {
				return
			}
		}
	}
}

// SetMatchCapacity reallocates the match array to hold capacity records.
// Fails with ErrOutOfRange when capacity is below the current count.
func (t *Tree[V]) SetMatchCapacity(capacity int) error {
	if capacity < len(t.matches) {
		return ErrOutOfRange
	}

	matches := make([]Match[V], len(t.matches), capacity)
	copy(matches, t.matches)
	t.matches = matches

	return nil
}

// SetNodeCapacity reallocates the node array to hold capacity nodes.
// Fails with ErrOutOfRange when capacity is below the current node count.
func (t *Tree[V]) SetNodeCapacity(capacity int) error {
	if capacity < len(t.nodes) {
		return ErrOutOfRange
	}

	nodes := make([]node, len(t.nodes), capacity)
	copy(nodes, t.nodes)
	t.nodes = nodes

	return nil
}

// Contains reports whether key is stored in the tree.
func (t *Tree[V]) Contains(key string) bool {
	_, ok, err := t.TryMatchExact(key, 0, len(key))

	return err == nil && ok
}

// Get returns the value stored for key.
func (t *Tree[V]) Get(key string) (V, error) {
	m, ok, err := t.TryMatchExact(key, 0, len(key))
	if err != nil || !ok {
		var zero V

		return zero, ErrKeyNotFound
	}

	return m.Value, nil
}

// Set stores value under key, inserting or overwriting as needed.
func (t *Tree[V]) Set(key string, value V) error {
	_, err := t.Insert(key, value, OverwriteExisting)

	return err
}

// fold maps ASCII upper case to lower case when the tree ignores case.
func (t *Tree[V]) fold(r rune) rune {
	if t.ignoreCase && r >= 'A' && r <= 'Z' {
		return r | asciiCaseBit
	}

	return r
}

// rootFor returns the root node index for a folded first character.
func (t *Tree[V]) rootFor(c rune) int32 {
	if c < asciiRootSize {
		return t.asciiRoots[c]
	}

	idx, ok := t.otherRoots[c]
	if !ok {
		return noNode
	}

	return idx
}

// setRoot registers the root node for a folded first character.
func (t *Tree[V]) setRoot(c rune, idx int32) {
	if c < asciiRootSize {
		t.asciiRoots[c] = idx

		return
	}

	if t.otherRoots == nil {
		t.otherRoots = make(map[rune]int32)
	}

	t.otherRoots[c] = idx
}

// childFor returns the child of nd reached via folded character c, or noNode.
func (t *Tree[V]) childFor(nodeIdx int32, c rune) int32 {
	nd := &t.nodes[nodeIdx]
	if nd.fastChildCh == c {
		return nd.fastChildIdx
	}

	for _, idx := range nd.overflow {
		if t.nodes[idx].ch == c {
			return idx
		}
	}

	return noNode
}
