// Package backendtest provides a deterministic in-memory implementation of
// the backend capability set. Tokenisation is word-per-piece over a fixed
// vocabulary and logits follow a scripted function, so generation, cache
// policy and session behaviour can be asserted exactly without a model file.
package backendtest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noctics/nox/internal/backend"
	"github.com/noctics/nox/internal/state"
)

// Config shapes a scripted backend.
type Config struct {
	// Vocab maps token id to its piece. Tokenize splits prompts on spaces and
	// requires every word to be a vocab entry.
	Vocab []string
	// BOS is prepended when Tokenize is called with addSpecial.
	BOS int
	// EOG ends generation when sampled.
	EOG int
	// Capacity bounds resident cache entries; decoding past it returns
	// ErrKvCacheFull. 0 means the context's CtxLength is the bound (unbounded
	// only when that is 0 as well).
	Capacity int
	// NoShift makes KvCanShift report false.
	NoShift bool
	// Logits produces the vocabulary-sized logits after decoding token tok at
	// position pos. Nil uses a ramp that makes argmax yield (tok+1) % vocab.
	Logits func(tok, pos, vocab int) []float32
}

// Backend implements backend.Backend.
type Backend struct {
	cfg Config
	// Ctx is the most recently created context, exposed for assertions.
	Ctx *Ctx
}

func New(cfg Config) *Backend {
	if cfg.Logits == nil {
		cfg.Logits = rampLogits
	}
	return &Backend{cfg: cfg}
}

func rampLogits(tok, pos, vocab int) []float32 {
	out := make([]float32, vocab)
	for i := range out {
		out[i] = -10
	}
	out[(tok+1)%vocab] = 8
	out[(tok+2)%vocab] = 4
	return out
}

func (b *Backend) SupportsMlock() bool { return false }

func (b *Backend) Load(path string, opts backend.LoadOptions) (backend.Model, error) {
	index := make(map[string]int, len(b.cfg.Vocab))
	for id, piece := range b.cfg.Vocab {
		index[piece] = id
	}
	return &Model{cfg: b.cfg, index: index}, nil
}

func (b *Backend) NewContext(m backend.Model, opts backend.ContextOptions) (backend.Context, error) {
	sm, ok := m.(*Model)
	if !ok {
		return nil, fmt.Errorf("model does not belong to the scripted backend")
	}
	capacity := b.cfg.Capacity
	if capacity == 0 {
		capacity = opts.CtxLength
	}
	ctx := &Ctx{cfg: b.cfg, model: sm, capacity: capacity, cache: make(map[int]int)}
	b.Ctx = ctx
	return ctx, nil
}

// Model implements backend.Model over the configured vocabulary.
type Model struct {
	cfg   Config
	index map[string]int
}

func (m *Model) Tokenize(text string, addSpecial, parseSpecial bool) ([]int, error) {
	words := strings.Fields(text)
	toks := make([]int, 0, len(words)+1)
	if addSpecial {
		toks = append(toks, m.cfg.BOS)
	}
	for _, w := range words {
		id, ok := m.index[w]
		if !ok {
			return nil, fmt.Errorf("word %q not in vocabulary", w)
		}
		toks = append(toks, id)
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty tokens")
	}
	return toks, nil
}

func (m *Model) Piece(token int) string {
	if token < 0 || token >= len(m.cfg.Vocab) {
		return ""
	}
	return m.cfg.Vocab[token]
}

func (m *Model) IsEOG(token int) bool { return token == m.cfg.EOG }

func (m *Model) Close() {}

// Ctx implements backend.Context and records every cache-affecting call.
type Ctx struct {
	cfg      Config
	model    *Model
	capacity int
	cache    map[int]int // position -> token
	last     []float32

	// DecodeSizes records the slot count of each Decode call.
	DecodeSizes []int
	// Ops records KV operations in call order, e.g. "clear", "rm(0,5,-1)".
	Ops []string
	// SamplerResets counts Reset calls across all samplers of this context.
	SamplerResets int
}

func (c *Ctx) Decode(b backend.Batch) error {
	sb := b.(*Batch)
	if c.capacity > 0 && len(c.cache)+len(sb.slots) > c.capacity {
		return backend.ErrKvCacheFull
	}
	c.DecodeSizes = append(c.DecodeSizes, len(sb.slots))
	for _, s := range sb.slots {
		c.cache[s.pos] = s.token
		if s.logits {
			c.last = c.cfg.Logits(s.token, s.pos, len(c.cfg.Vocab))
		}
	}
	return nil
}

func (c *Ctx) LogitsLast() []float32 { return c.last }

func (c *Ctx) NewBatch(capacity int) (backend.Batch, error) {
	return &Batch{capacity: capacity}, nil
}

func (c *Ctx) NewSampler(opts backend.SamplerOptions) (backend.Sampler, error) {
	return &Sampler{ctx: c}, nil
}

func (c *Ctx) KvClear() {
	c.cache = make(map[int]int)
	c.Ops = append(c.Ops, "clear")
}

func (c *Ctx) KvSeqRm(seq, from, to int) {
	c.Ops = append(c.Ops, fmt.Sprintf("rm(%d,%d,%d)", seq, from, to))
	for pos := range c.cache {
		if pos >= from && (to < 0 || pos < to) {
			delete(c.cache, pos)
		}
	}
}

func (c *Ctx) KvSeqAdd(seq, from, to, delta int) {
	c.Ops = append(c.Ops, fmt.Sprintf("add(%d,%d,%d,%d)", seq, from, to, delta))
	moved := make([]int, 0, len(c.cache))
	for pos := range c.cache {
		if pos >= from && pos < to {
			moved = append(moved, pos)
		}
	}
	sort.Ints(moved)
	if delta > 0 {
		// Shift right-to-left so targets stay free.
		for i := len(moved) - 1; i >= 0; i-- {
			pos := moved[i]
			c.cache[pos+delta] = c.cache[pos]
			delete(c.cache, pos)
		}
		return
	}
	for _, pos := range moved {
		c.cache[pos+delta] = c.cache[pos]
		delete(c.cache, pos)
	}
}

func (c *Ctx) KvCanShift() bool { return !c.cfg.NoShift }

func (c *Ctx) StateSaveFile(path string, tokens []int) error {
	return state.Save(path, state.Meta{Model: "scripted"}, tokens)
}

func (c *Ctx) StateLoadFile(path string, maxTokens int) ([]int, error) {
	_, tokens, err := state.Load(path, maxTokens)
	if err != nil {
		return nil, err
	}
	c.cache = make(map[int]int, len(tokens))
	for pos, tok := range tokens {
		c.cache[pos] = tok
	}
	return tokens, nil
}

func (c *Ctx) Close() {}

// Positions returns the resident cache positions in ascending order.
func (c *Ctx) Positions() []int {
	out := make([]int, 0, len(c.cache))
	for pos := range c.cache {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}

// TokenAt returns the cached token at pos, or -1.
func (c *Ctx) TokenAt(pos int) int {
	tok, ok := c.cache[pos]
	if !ok {
		return -1
	}
	return tok
}

type slot struct {
	token  int
	pos    int
	logits bool
	seq    int
}

// Batch implements backend.Batch.
type Batch struct {
	capacity int
	slots    []slot
}

func (b *Batch) Clear() { b.slots = b.slots[:0] }

func (b *Batch) Add(token, pos int, logits bool, seq int) {
	b.slots = append(b.slots, slot{token: token, pos: pos, logits: logits, seq: seq})
}

func (b *Batch) Size() int { return b.capacity }

func (b *Batch) Free() {}

// Sampler implements backend.Sampler as deterministic argmax with a recorded
// repetition window.
type Sampler struct {
	ctx    *Ctx
	window []int
}

func (s *Sampler) Sample(slotIdx int) int {
	logits := s.ctx.last
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best
}

func (s *Sampler) Accept(token int) {
	s.window = append(s.window, token)
}

func (s *Sampler) Reset() {
	s.window = s.window[:0]
	s.ctx.SamplerResets++
}
