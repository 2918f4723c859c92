//go:build llama

package backend

import (
	"errors"
	"fmt"

	"github.com/ollama/ollama/llama"
	"github.com/ollama/ollama/ml"
)

// llamaBackend adapts the llama.cpp binding to the Backend capability set.
// Every method body is a single binding call plus error translation.
type llamaBackend struct{}

// New initialises the native backend once per process.
func New() (Backend, error) {
	llama.BackendInit()
	return llamaBackend{}, nil
}

func (llamaBackend) SupportsMlock() bool {
	return llama.SupportsMlock()
}

func (llamaBackend) Load(path string, opts LoadOptions) (Model, error) {
	progress := func(p float32) {
		if opts.Progress != nil {
			opts.Progress(p)
		}
	}
	m, err := llama.LoadModelFromFile(path, llama.ModelParams{
		UseMmap:  opts.UseMmap,
		UseMlock: opts.UseMlock,
		Progress: progress,
	})
	if err != nil {
		return nil, err
	}
	return &llamaModel{m: m}, nil
}

func (llamaBackend) NewContext(m Model, opts ContextOptions) (Context, error) {
	lm, ok := m.(*llamaModel)
	if !ok {
		return nil, fmt.Errorf("model does not belong to the llama backend")
	}
	params := llama.NewContextParams(opts.CtxLength, opts.BatchSize, opts.Seqs, opts.Threads, ml.FlashAttentionAuto, "")
	lc, err := llama.NewContextWithModel(lm.m, params)
	if err != nil {
		return nil, err
	}
	return &llamaContext{lc: lc, model: lm}, nil
}

type llamaModel struct {
	m *llama.Model
}

func (m *llamaModel) Tokenize(text string, addSpecial, parseSpecial bool) ([]int, error) {
	return m.m.Tokenize(text, addSpecial, parseSpecial)
}

func (m *llamaModel) Piece(token int) string {
	return m.m.TokenToPiece(token)
}

func (m *llamaModel) IsEOG(token int) bool {
	return m.m.TokenIsEog(token)
}

func (m *llamaModel) Close() {
	llama.FreeModel(m.m)
}

type llamaContext struct {
	lc    *llama.Context
	model *llamaModel
}

func (c *llamaContext) Decode(b Batch) error {
	lb := b.(*llamaBatch)
	if err := c.lc.Decode(lb.b); err != nil {
		if errors.Is(err, llama.ErrKvCacheFull) {
			return ErrKvCacheFull
		}
		return err
	}
	return nil
}

func (c *llamaContext) LogitsLast() []float32 {
	return c.lc.GetLogitsIth(-1)
}

func (c *llamaContext) NewBatch(capacity int) (Batch, error) {
	b, err := llama.NewBatch(capacity, 1, 0)
	if err != nil {
		return nil, err
	}
	return &llamaBatch{b: b}, nil
}

func (c *llamaContext) NewSampler(opts SamplerOptions) (Sampler, error) {
	sc, err := llama.NewSamplingContext(c.model.m, llama.SamplingParams{
		TopK:          opts.TopK,
		TopP:          opts.TopP,
		Temp:          opts.Temp,
		RepeatLastN:   opts.RepeatLastN,
		PenaltyRepeat: opts.RepeatPenalty,
	})
	if err != nil {
		return nil, err
	}
	return &llamaSampler{sc: sc, lc: c.lc}, nil
}

func (c *llamaContext) KvClear() {
	c.lc.KvCacheClear()
}

func (c *llamaContext) KvSeqRm(seq, from, to int) {
	c.lc.KvCacheSeqRm(seq, from, to)
}

func (c *llamaContext) KvSeqAdd(seq, from, to, delta int) {
	c.lc.KvCacheSeqAdd(seq, from, to, delta)
}

func (c *llamaContext) KvCanShift() bool {
	return c.lc.KvCacheCanShift()
}

func (c *llamaContext) StateSaveFile(path string, tokens []int) error {
	return c.lc.StateSaveFile(path, tokens)
}

func (c *llamaContext) StateLoadFile(path string, maxTokens int) ([]int, error) {
	return c.lc.StateLoadFile(path, maxTokens)
}

func (c *llamaContext) Close() {}

type llamaBatch struct {
	b *llama.Batch
}

func (b *llamaBatch) Clear() { b.b.Clear() }

func (b *llamaBatch) Add(token, pos int, logits bool, seq int) {
	b.b.Add(token, nil, pos, logits, seq)
}

func (b *llamaBatch) Size() int { return b.b.Size() }

func (b *llamaBatch) Free() { b.b.Free() }

type llamaSampler struct {
	sc *llama.SamplingContext
	lc *llama.Context
}

func (s *llamaSampler) Sample(slot int) int {
	return s.sc.Sample(s.lc, slot)
}

func (s *llamaSampler) Accept(token int) {
	s.sc.Accept(token, true)
}

func (s *llamaSampler) Reset() {
	s.sc.Reset()
}
