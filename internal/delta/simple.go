package delta

// Simple is the reference scheme: a greedy longest-match encoder over a
// fixed-length anchor index into base, in the spirit of LZ77 diffing
// across two buffers rather than one. Always correct (it falls back to a
// single insert of the whole target when base shares nothing), and has no
// external dependency — it is the spec's own minimum contract given a
// concrete shape.

const simpleAnchorLen = 16

// buildAnchorIndex maps every simpleAnchorLen-byte window of base to the
// offsets it occurs at, so the encoder can look up candidate match points
// for any position in target in O(1) average time.
func buildAnchorIndex(base []byte) map[string][]int {
	idx := make(map[string][]int)
	if len(base) < simpleAnchorLen {
		return idx
	}
	for i := 0; i+simpleAnchorLen <= len(base); i++ {
		key := string(base[i : i+simpleAnchorLen])
		idx[key] = append(idx[key], i)
	}
	return idx
}

func encodeSimple(base, target []byte) []byte {
	idx := buildAnchorIndex(base)
	out := make([]byte, 0, len(target)/2)

	var literal []byte
	flushLiteral := func() {
		if len(literal) > 0 {
			out = encodeInsert(out, literal)
			literal = nil
		}
	}

	i := 0
	for i < len(target) {
		if i+simpleAnchorLen > len(target) {
			literal = append(literal, target[i:]...)
			break
		}
		key := string(target[i : i+simpleAnchorLen])
		candidates := idx[key]
		if len(candidates) == 0 {
			literal = append(literal, target[i])
			i++
			continue
		}

		// Pick the candidate that extends the furthest match.
		bestOff, bestLen := -1, 0
		for _, c := range candidates {
			l := matchLen(base[c:], target[i:])
			if l > bestLen {
				bestLen, bestOff = l, c
			}
		}
		flushLiteral()
		out = encodeCopy(out, uint64(bestOff), uint64(bestLen))
		i += bestLen
	}
	flushLiteral()
	return out
}

func matchLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
