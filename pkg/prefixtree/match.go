package prefixtree

import "unicode/utf8"

// matchMode selects which stored prefix of the text region a query returns.
type matchMode int

const (
	matchShortest matchMode = iota
	matchExact
	matchLongest
)

// TryMatchShortest returns the shortest stored key that is a prefix of
// text[offset : offset+length].
func (t *Tree[V]) TryMatchShortest(text string, offset, length int) (Match[V], bool, error) {
	return t.match(text, offset, length, matchShortest)
}

// TryMatchExact returns the stored key equal to text[offset : offset+length].
func (t *Tree[V]) TryMatchExact(text string, offset, length int) (Match[V], bool, error) {
	return t.match(text, offset, length, matchExact)
}

// TryMatchLongest returns the longest stored key that is a prefix of
// text[offset : offset+length].
func (t *Tree[V]) TryMatchLongest(text string, offset, length int) (Match[V], bool, error) {
	return t.match(text, offset, length, matchLongest)
}

// MatchShortest is TryMatchShortest over the whole text.
func (t *Tree[V]) MatchShortest(text string) (Match[V], bool) {
	m, ok, _ := t.match(text, 0, len(text), matchShortest)

	return m, ok
}

// MatchExact is TryMatchExact over the whole text.
func (t *Tree[V]) MatchExact(text string) (Match[V], bool) {
	m, ok, _ := t.match(text, 0, len(text), matchExact)

	return m, ok
}

// MatchLongest is TryMatchLongest over the whole text.
func (t *Tree[V]) MatchLongest(text string) (Match[V], bool) {
	m, ok, _ := t.match(text, 0, len(text), matchLongest)

	return m, ok
}

// match walks the tree along the region, tracking the deepest full-prefix
// match seen. One routine serves all three modes; they differ only in when
// the walk commits to a result.
func (t *Tree[V]) match(text string, offset, length int, mode matchMode) (Match[V], bool, error) {
	if offset < 0 || length < 0 || offset > len(text) || length > len(text)-offset {
		return Match[V]{}, false, ErrOutOfRange
	}

	region := text[offset : offset+length]

	var (
		nodeIdx = noNode
		depth   int
		best    = noMatch
	)

	walkedAll := true

	for byteIdx, r := range region {
		c := t.fold(r)

		var next int32
		if depth == 0 {
			next = t.rootFor(c)
		} else {
			next = t.childFor(nodeIdx, c)
		}

		if next == noNode {
			walkedAll = false

			break
		}

		nodeIdx = next
		depth++

		nd := &t.nodes[nodeIdx]
		if nd.matchIdx == noMatch {
			continue
		}

		m := &t.matches[nd.matchIdx]

		if m.runeLen == depth {
			// A key terminates exactly at this depth, so it is a prefix of
			// the region by construction.
			switch mode {
			case matchShortest:
				return *m, true, nil
			case matchLongest:
				best = nd.matchIdx
			case matchExact:
				// Only a hit if the region ends here; checked after the walk.
			}

			continue
		}

		if nd.fastChildCh == noRune && len(nd.overflow) == 0 {
			// Leaf with an implicit tail: the stored key extends past this
			// node without per-character nodes. Verify the tail against the
			// remaining region.
			tail := runeSuffix(m.Key, depth)
			remaining := region[byteIdx+utf8.RuneLen(r):]

			prefixOK, exactOK := t.tailMatches(tail, remaining)

			if mode == matchExact {
				if exactOK {
					return *m, true, nil
				}
			} else if prefixOK {
				if mode == matchShortest {
					return *m, true, nil
				}

				best = nd.matchIdx
			}

			walkedAll = false

			break
		}
	}

	if mode == matchExact {
		if walkedAll && nodeIdx != noNode {
			nd := &t.nodes[nodeIdx]
			if nd.matchIdx != noMatch && t.matches[nd.matchIdx].runeLen == depth {
				return t.matches[nd.matchIdx], true, nil
			}
		}

		return Match[V]{}, false, nil
	}

	if mode == matchLongest && best != noMatch {
		return t.matches[best], true, nil
	}

	return Match[V]{}, false, nil
}

// tailMatches compares a stored key tail against the remaining region,
// folding case when configured. prefixOK reports the whole tail matched;
// exactOK additionally requires the region to end with it.
func (t *Tree[V]) tailMatches(tail, remaining string) (prefixOK, exactOK bool) {
	for len(tail) > 0 {
		if len(remaining) == 0 {
			return false, false
		}

		tr, tn := utf8.DecodeRuneInString(tail)
		rr, rn := utf8.DecodeRuneInString(remaining)

		if t.fold(tr) != t.fold(rr) {
			return false, false
		}

		tail = tail[tn:]
		remaining = remaining[rn:]
	}

	return true, len(remaining) == 0
}

// runeSuffix returns s with its first n runes removed.
func runeSuffix(s string, n int) string {
	i := 0

	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}

	return s[i:]
}
