// Package kvcache holds the cache position policy: prefix retention between
// prompts, the sliding-window shift, and history trimming. It is stateless;
// the cache itself lives behind the KV interface.
package kvcache

// KV is the slice of backend capabilities the policy operates on.
type KV interface {
	KvClear()
	KvSeqRm(seq, from, to int)
	KvSeqAdd(seq, from, to, delta int)
	KvCanShift() bool
}

// CommonPrefix returns the length of the longest shared prefix of a and b.
func CommonPrefix(a, b []int) int {
	n := min(len(a), len(b))
	count := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		count++
	}
	return count
}

// RetainPrefix aligns the cache holding prev with the upcoming prompt next.
// It returns the common prefix length: the caller prefills next[common:].
// No overlap clears the cache entirely; a partial overlap truncates the
// stale tail.
func RetainPrefix(kv KV, prev, next []int) int {
	common := CommonPrefix(prev, next)
	if common == 0 {
		kv.KvClear()
	} else if common < len(prev) {
		kv.KvSeqRm(0, common, -1)
	}
	return common
}

// Shift makes room for one more decode step when curPos has reached the
// sliding window. It discards the oldest positions and renumbers the
// survivors down to [0, window-1), returning the new curPos. When the cache
// cannot shift, curPos is returned unchanged and the next decode surfaces
// the failure.
func Shift(kv KV, curPos, window int) int {
	if window <= 0 || curPos < window {
		return curPos
	}
	if !kv.KvCanShift() {
		return curPos
	}
	discard := curPos - (window - 1)
	if discard <= 0 || discard >= curPos {
		return curPos
	}
	kv.KvSeqRm(0, 0, discard)
	kv.KvSeqAdd(0, discard, curPos, -discard)
	return curPos - discard
}

// TrimHistory keeps the trailing window entries of the logical token log so
// it stays aligned with a window-bounded cache.
func TrimHistory(tokens []int, window int) []int {
	if window <= 0 || len(tokens) <= window {
		return tokens
	}
	return tokens[len(tokens)-window:]
}
