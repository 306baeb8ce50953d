package store

import (
	"math/bits"

	"github.com/fenwick-labs/keydb/internal/streamid"
)

// FieldValue is one field/value pair of a stream entry. Entries keep
// fields in an ordered slice rather than a map because XRANGE must
// report them back in the order they were given to XADD.
type FieldValue struct {
	Field string
	Value string
}

// streamEntry is a single leaf of a stream's entry tree.
type streamEntry struct {
	ID     streamid.ID
	Fields []FieldValue
}

// internalKey is the fixed-width, order-preserving packing of a
// streamid.ID used to index the tree below: each of (Hi, Lo, Seq) becomes
// 11 base-64 "digits" (11*6 = 66 bits, enough for any uint64), most
// significant digit first, concatenated into one 33-byte key. Because the
// packing is big-endian within each word and the words are concatenated
// in (Hi, Lo, Seq) order, comparing two internal keys byte-by-byte agrees
// with streamid.Compare on the original ids.
type internalKey = []uint8

const maxUint64 = ^uint64(0)

func pack(id streamid.ID) internalKey {
	buf := make([]uint8, 33)
	toBase64Digits(buf[0:11], id.Hi)
	toBase64Digits(buf[11:22], id.Lo)
	toBase64Digits(buf[22:33], id.Seq)
	return buf
}

// toBase64Digits fills buf (length 11) with the base-64 digit
// representation of val, most significant digit first.
func toBase64Digits(buf []uint8, val uint64) {
	i := len(buf)
	for val >= 64 {
		i--
		buf[i] = uint8(val & 63)
		val >>= 6
	}
	i--
	buf[i] = uint8(val)
}

// rxNode is a node of the append-only radix tree ("Array Mapped Tree")
// storing a stream's entries. Single-child chains are compressed into
// extraChars; bitmap marks which of the 64 possible next digits have a
// child, and a population count over bitmap gives that child's index
// into children.
type rxNode struct {
	entry      *streamEntry
	bitmap     uint64
	extraChars []uint8
	children   []rxNode
}

// longestCommonPrefix walks key from n, returning the deepest node shared
// with an existing path. failIdx is -1 on an exact match (bestMatch is
// then the node for key itself); otherwise it is the index in key where
// the walk first found no matching child, and extraFailIdx is the index
// of the first mismatching digit within that node's extraChars (or -1 if
// the walk failed on an uncompressed digit).
func (n *rxNode) longestCommonPrefix(key internalKey) (bestMatch *rxNode, failIdx, extraFailIdx int) {
	cur := n
	for depth := 0; ; depth++ {
		for i, ch := range cur.extraChars {
			if ch != key[depth+i] {
				return cur, depth + i, i
			}
		}
		depth += len(cur.extraChars)

		if depth == len(key) {
			return cur, -1, -1
		}

		offset := key[depth]
		mask := uint64(1) << offset
		if cur.bitmap&mask == 0 {
			return cur, depth, -1
		}
		cur = &cur.children[childIndex(cur.bitmap, offset)]
	}
}

// create returns the node for key, creating any intermediate nodes
// necessary. The tree is append-only: this is the only mutating
// operation, matching the "strictly increasing assigned ids" invariant
// that makes a true delete/rebalance unnecessary.
func (n *rxNode) create(key internalKey) *rxNode {
	node, failIdx, extraFailIdx := n.longestCommonPrefix(key)
	if failIdx == -1 {
		return node
	}

	var newNode *rxNode
	if extraFailIdx == -1 {
		offset := key[failIdx]
		mask := uint64(1) << offset
		node.bitmap |= mask
		idx := childIndex(node.bitmap, offset)
		node.insertChild(idx)
		newNode = &node.children[idx]
	} else {
		split := *node
		split.extraChars = node.extraChars[extraFailIdx+1:]

		splitOffset := node.extraChars[extraFailIdx]
		newOffset := key[failIdx]
		if newOffset > splitOffset {
			node.children = []rxNode{split, {}}
			newNode = &node.children[1]
		} else {
			node.children = []rxNode{{}, split}
			newNode = &node.children[0]
		}
		node.extraChars = node.extraChars[:extraFailIdx]
		node.bitmap = uint64(1)<<splitOffset | uint64(1)<<newOffset
		node.entry = nil
	}

	if rest := key[failIdx+1:]; len(rest) > 0 {
		newNode.extraChars = append([]uint8(nil), rest...)
	}
	return newNode
}

func (n *rxNode) insertChild(idx int) {
	if n.children == nil {
		n.children = []rxNode{{}}
		return
	}
	if len(n.children)+1 > cap(n.children) {
		grown := make([]rxNode, len(n.children)+1, cap(n.children)+2)
		copy(grown, n.children[:idx])
		copy(grown[idx+1:], n.children[idx:])
		n.children = grown
		return
	}
	n.children = n.children[:len(n.children)+1]
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = rxNode{}
}

// allEntries returns every entry under n, ordered lowest id to highest.
// children are always stored low-to-high by construction (childIndex is
// a prefix population count), so an iterative DFS that visits children[0]
// before children[1] before ... yields entries in ascending order.
func (n *rxNode) allEntries() []streamEntry {
	out := make([]streamEntry, 0)
	stack := []*rxNode{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.entry != nil {
			out = append(out, *node.entry)
			continue
		}
		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, &node.children[i])
		}
	}
	return out
}

// entriesInRange returns the entries of n with id in [lo, hi], inclusive,
// in ascending order. allEntries is already sorted, so this is a linear
// scan rather than a range-pruning tree walk: simpler to get right, at
// the cost of always walking the whole tree instead of skipping
// subtrees outside the range.
func (n *rxNode) entriesInRange(lo, hi streamid.ID) []streamEntry {
	all := n.allEntries()
	out := make([]streamEntry, 0, len(all))
	for _, e := range all {
		if streamid.Compare(e.ID, lo) >= 0 && streamid.Compare(e.ID, hi) <= 0 {
			out = append(out, e)
		}
	}
	return out
}

// entriesAfter returns the entries of n with id strictly greater than
// after, in ascending order, for XREAD's "give me what's new since id"
// query.
func (n *rxNode) entriesAfter(after streamid.ID) []streamEntry {
	all := n.allEntries()
	out := make([]streamEntry, 0, len(all))
	for _, e := range all {
		if streamid.Compare(e.ID, after) > 0 {
			out = append(out, e)
		}
	}
	return out
}

func childIndex(bitmap uint64, offset uint8) int {
	if offset == 0 {
		return 0
	}
	below := maxUint64 >> (64 - offset)
	return bits.OnesCount64(bitmap & below)
}
