// Package backend defines the capability seam between the runner and the
// native inference library. Each method maps to a single backend call; cache
// policy, windowing and session bookkeeping live with the callers.
package backend

import "errors"

var (
	// ErrKvCacheFull is returned by Decode when no cache slot can hold the
	// batch. Callers decide whether it is fatal (prefill) or partial
	// (generation).
	ErrKvCacheFull = errors.New("kv cache full")

	// ErrUnavailable is returned by New when the binary was built without an
	// inference backend (no llama build tag).
	ErrUnavailable = errors.New("inference backend not built in (rebuild with -tags llama)")
)

// LoadOptions control how model weights are mapped into memory.
type LoadOptions struct {
	UseMmap  bool
	UseMlock bool
	Progress func(float32)
}

// ContextOptions size the decoder state attached to a model.
type ContextOptions struct {
	CtxLength int
	BatchSize int
	Seqs      int
	Threads   int
}

// SamplerOptions configure token selection for one generation session.
type SamplerOptions struct {
	TopK          int
	TopP          float32
	Temp          float32
	RepeatLastN   int
	RepeatPenalty float32
}

// Model wraps loaded weights plus the tokenizer that ships with them.
type Model interface {
	// Tokenize converts text to token ids. addSpecial controls BOS insertion,
	// parseSpecial allows control tokens in the text.
	Tokenize(text string, addSpecial, parseSpecial bool) ([]int, error)
	// Piece returns the detokenised byte fragment for one token. Pieces
	// concatenate to the final text.
	Piece(token int) string
	// IsEOG reports whether token ends generation.
	IsEOG(token int) bool
	Close()
}

// Batch is a fixed-capacity slot buffer for one decode call.
type Batch interface {
	Clear()
	// Add appends a slot. pos is the absolute cache position, logits requests
	// the logit vector for this slot, seq is the sequence id.
	Add(token, pos int, logits bool, seq int)
	// Size returns the slot capacity.
	Size() int
	Free()
}

// Sampler turns a logits vector into a token id and tracks the repetition
// window. Reset must be called at the start of every generation run.
type Sampler interface {
	Sample(slot int) int
	Accept(token int)
	Reset()
}

// Context is the per-instance decoder state, including the KV cache.
type Context interface {
	Decode(Batch) error
	// LogitsLast returns the vocabulary-sized logits of the last slot that
	// requested them.
	LogitsLast() []float32

	NewBatch(capacity int) (Batch, error)
	NewSampler(SamplerOptions) (Sampler, error)

	KvClear()
	// KvSeqRm removes cache entries of seq in [from, to); to < 0 means to the
	// end.
	KvSeqRm(seq, from, to int)
	// KvSeqAdd shifts the positions of cache entries of seq in [from, to) by
	// delta.
	KvSeqAdd(seq, from, to, delta int)
	KvCanShift() bool

	// StateSaveFile persists the KV cache and the token list that produced it.
	StateSaveFile(path string, tokens []int) error
	// StateLoadFile restores a saved cache and returns its token list.
	StateLoadFile(path string, maxTokens int) ([]int, error)

	Close()
}

// Backend bundles the capability set of the native inference library.
type Backend interface {
	Load(path string, opts LoadOptions) (Model, error)
	SupportsMlock() bool
	NewContext(m Model, opts ContextOptions) (Context, error)
}
