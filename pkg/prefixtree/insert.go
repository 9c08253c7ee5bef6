package prefixtree

import "github.com/Sumatoshi-tech/matchkit/pkg/safeconv"

// Insert stores value under key. The returned bool reports whether the tree
// was modified. A zero-length key fails with ErrEmptyKey; an existing key is
// resolved by policy.
func (t *Tree[V]) Insert(key string, value V, policy OnExisting) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	ks := []rune(key)
	n := len(ks)

	c0 := t.fold(ks[0])

	root := t.rootFor(c0)
	if root == noNode {
		leaf := t.addNode(c0, t.nextMatchIdx())
		t.setRoot(c0, leaf)
		t.appendMatch(key, value, n)

		return true, nil
	}

	nodeIdx := root
	i := 1 // Next rune of key to consume; nodeIdx sits at depth i.

	for i < n {
		c := t.fold(ks[i])

		fastCh := t.nodes[nodeIdx].fastChildCh
		overflow := t.nodes[nodeIdx].overflow

		switch {
		case fastCh == c:
			nodeIdx = t.nodes[nodeIdx].fastChildIdx
			i++

		case fastCh == noRune && len(overflow) == 0:
			// A leaf holding an earlier key; split on the common prefix.
			return t.splitLeaf(nodeIdx, ks, key, value, i, policy)

		case len(overflow) == 0:
			// Fast child mismatch and no overflow yet: the new key becomes
			// the first overflow entry.
			leaf := t.addNode(c, t.nextMatchIdx())
			t.nodes[nodeIdx].overflow = append(t.nodes[nodeIdx].overflow, leaf)
			t.appendMatch(key, value, n)

			return true, nil

		default:
			child := t.overflowChild(nodeIdx, c)
			if child != noNode {
				nodeIdx = child
				i++

				continue
			}

			leaf := t.addNode(c, t.nextMatchIdx())
			t.nodes[nodeIdx].overflow = append(t.nodes[nodeIdx].overflow, leaf)
			t.appendMatch(key, value, n)

			return true, nil
		}
	}

	return t.installAtNode(nodeIdx, ks, key, value, policy)
}

// splitLeaf restructures a leaf node when a new key shares its path. The
// shared portion beyond the leaf becomes a chain of single-fast-child nodes;
// the point where the keys part becomes the fork.
func (t *Tree[V]) splitLeaf(nodeIdx int32, ks []rune, key string, value V, i int, policy OnExisting) (bool, error) {
	oldMatch := t.nodes[nodeIdx].matchIdx
	pk := []rune(t.matches[oldMatch].Key)

	m := len(pk)
	n := len(ks)

	// Extend the common prefix past position i.
	l := i
	for l < n && l < m && t.fold(ks[l]) == t.fold(pk[l]) {
		l++
	}

	if l == n && l == m {
		return t.resolveDuplicate(oldMatch, value, policy)
	}

	newMatch := t.nextMatchIdx()

	// The old match is re-homed below; clear it off the split node first.
	t.nodes[nodeIdx].matchIdx = noMatch

	forkIdx := nodeIdx

	for j := i; j < l; j++ {
		ch := t.fold(ks[j])
		child := t.addNode(ch, noMatch)
		t.setFastChild(forkIdx, ch, child)
		forkIdx = child
	}

	switch {
	case l == m:
		// The previous key terminates at the fork; the new key continues.
		t.nodes[forkIdx].matchIdx = oldMatch

		ch := t.fold(ks[l])
		leaf := t.addNode(ch, newMatch)
		t.setFastChild(forkIdx, ch, leaf)

	case l == n:
		// The new key terminates at the fork; the previous key continues.
		t.nodes[forkIdx].matchIdx = newMatch

		ch := t.fold(pk[l])
		leaf := t.addNode(ch, oldMatch)
		t.setFastChild(forkIdx, ch, leaf)

	default:
		// Genuine divergence: the previous key keeps the fast edge, the new
		// key opens the overflow list.
		prevCh := t.fold(pk[l])
		prevLeaf := t.addNode(prevCh, oldMatch)
		t.setFastChild(forkIdx, prevCh, prevLeaf)

		newLeaf := t.addNode(t.fold(ks[l]), newMatch)
		t.nodes[forkIdx].overflow = append(t.nodes[forkIdx].overflow, newLeaf)
	}

	t.appendMatch(key, value, n)

	return true, nil
}

// installAtNode handles a key whose runes are exhausted at nodeIdx.
func (t *Tree[V]) installAtNode(nodeIdx int32, ks []rune, key string, value V, policy OnExisting) (bool, error) {
	n := len(ks)

	existing := t.nodes[nodeIdx].matchIdx
	if existing == noMatch {
		t.nodes[nodeIdx].matchIdx = t.nextMatchIdx()
		t.appendMatch(key, value, n)

		return true, nil
	}

	if t.matches[existing].runeLen == n {
		return t.resolveDuplicate(existing, value, policy)
	}

	// The stored key is longer than the new one: its tail extends past this
	// node implicitly. Push the old match one node deeper along a fresh fast
	// edge and install the new match here.
	pk := []rune(t.matches[existing].Key)

	ch := t.fold(pk[n])
	leaf := t.addNode(ch, existing)
	t.setFastChild(nodeIdx, ch, leaf)
	t.nodes[nodeIdx].matchIdx = t.nextMatchIdx()
	t.appendMatch(key, value, n)

	return true, nil
}

// resolveDuplicate applies the insert policy to an existing match record.
func (t *Tree[V]) resolveDuplicate(existing int32, value V, policy OnExisting) (bool, error) {
	switch policy {
	case OverwriteExisting:
		t.matches[existing].Value = value

		return true, nil
	case SkipExisting:
		return false, nil
	default:
		return false, ErrDuplicateKey
	}
}

// addNode appends a node and returns its index. Appending may move the node
// array; callers must not hold node pointers across this call.
func (t *Tree[V]) addNode(ch rune, matchIdx int32) int32 {
	idx := safeconv.MustIntToInt32(len(t.nodes))
	t.nodes = append(t.nodes, node{
		ch:           ch,
		fastChildCh:  noRune,
		fastChildIdx: noNode,
		matchIdx:     matchIdx,
	})

	return idx
}

// setFastChild points the fast edge of parent at child.
func (t *Tree[V]) setFastChild(parent int32, ch rune, child int32) {
	t.nodes[parent].fastChildCh = ch
	t.nodes[parent].fastChildIdx = child
}

// overflowChild scans the overflow list of nodeIdx for folded character c.
func (t *Tree[V]) overflowChild(nodeIdx int32, c rune) int32 {
	for _, idx := range t.nodes[nodeIdx].overflow {
		if t.nodes[idx].ch == c {
			return idx
		}
	}

	return noNode
}

// nextMatchIdx returns the index the next appended match will occupy.
func (t *Tree[V]) nextMatchIdx() int32 {
	return safeconv.MustIntToInt32(len(t.matches))
}

// appendMatch records a new (key, value) pair with its rune length.
func (t *Tree[V]) appendMatch(key string, value V, runeLen int) {
	t.matches = append(t.matches, Match[V]{
		Key:     key,
		Value:   value,
		runeLen: runeLen,
	})
}
