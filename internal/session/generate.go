package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/noctics/nox/internal/backend"
	"github.com/noctics/nox/internal/kvcache"
	"github.com/noctics/nox/internal/logits"
)

const metricsPrefix = "NR|"

// ErrPromptTooLong means the prompt cannot fit inside the sliding window, so
// prefill would evict tokens it is still feeding.
var ErrPromptTooLong = errors.New("prompt exceeds kv-window")

// runTokens feeds toks[startPos:] through the model and then streams sampled
// tokens until EOG or the max-token cap. posOffset is the count of tokens
// already resident in cache, i.e. the absolute position of toks[0]. saveFn,
// when set, runs right after prefill so the state file captures the full
// logical prefix.
func (c *Controller) runTokens(toks []int, startPos, posOffset int, stats *Stats, saveFn func() error) ([]int, error) {
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty tokens")
	}
	c.sampler.Reset()
	if startPos < 0 {
		startPos = 0
	}
	if startPos > len(toks) {
		startPos = len(toks)
	}

	kvWindow := c.opts.KVWindow
	if kvWindow > 0 && posOffset+len(toks) > kvWindow {
		return nil, fmt.Errorf("%w: prompt tokens (%d) exceed kv-window (%d)", ErrPromptTooLong, posOffset+len(toks), kvWindow)
	}

	prefillStart := time.Now()
	pos := startPos
	for pos < len(toks) {
		c.batch.Clear()
		chunk := min(len(toks)-pos, c.batch.Size())
		for i := 0; i < chunk; i++ {
			idx := pos + i
			absPos := posOffset + idx
			wantLogits := idx == len(toks)-1
			c.batch.Add(toks[idx], absPos, wantLogits, 0)
		}
		if err := c.ctx.Decode(c.batch); err != nil {
			if errors.Is(err, backend.ErrKvCacheFull) {
				return nil, fmt.Errorf("kv cache full during prompt prefill (increase -ctx or reduce prompt length; or enable -kv-window for sliding context)")
			}
			return nil, fmt.Errorf("decode (prompt) failed: %v", err)
		}
		pos += chunk
	}
	if stats != nil {
		stats.Prefill = time.Since(prefillStart)
	}
	if saveFn != nil {
		if err := saveFn(); err != nil {
			return nil, err
		}
	}

	lastToken := toks[len(toks)-1]
	curPos := posOffset + len(toks)
	if !c.opts.Raw {
		fmt.Fprintln(c.writer.bw, "nox:")
	}

	generated := make([]int, 0, c.opts.MaxTokens)
	genStart := time.Now()
	for i := 0; i < c.opts.MaxTokens; i++ {
		if kvWindow > 0 && curPos >= kvWindow {
			curPos = kvcache.Shift(c.ctx, curPos, kvWindow)
		}
		c.batch.Clear()
		c.batch.Add(lastToken, curPos, true, 0)
		if err := c.ctx.Decode(c.batch); err != nil {
			if errors.Is(err, backend.ErrKvCacheFull) {
				if kvWindow > 0 {
					return generated, fmt.Errorf("kv cache full during generation (try increasing -ctx or -kv-window; current -kv-window=%d)", kvWindow)
				}
				return generated, fmt.Errorf("kv cache full during generation (increase -ctx or enable -kv-window for sliding context)")
			}
			return generated, fmt.Errorf("decode (gen) failed: %v", err)
		}

		var max1, max2 float32
		if c.opts.Metrics {
			max1, max2 = logits.Top2(c.ctx.LogitsLast())
		}

		token := c.sampler.Sample(0)
		c.sampler.Accept(token)
		if c.model.IsEOG(token) {
			break
		}

		generated = append(generated, token)
		if err := c.writer.WriteString(c.model.Piece(token)); err != nil {
			return generated, err
		}
		if c.opts.Metrics {
			fmt.Fprintf(c.stderr, "%s%d|%.6f|%.6f|%.6f\n", metricsPrefix, token, max1, max2, max1-max2)
		}

		lastToken = token
		curPos++
	}
	if err := c.writer.Flush(); err != nil {
		return generated, err
	}
	if stats != nil {
		stats.GeneratedTokens = len(generated)
		stats.Generate = time.Since(genStart)
	}
	return generated, nil
}

// runPrompt resets cache and sampler, tokenizes and runs a standalone prompt.
func (c *Controller) runPrompt(prompt string, stats *Stats) error {
	c.ctx.KvClear()
	c.sampler.Reset()

	toks, err := c.tokenizePrompt(prompt, false)
	if err != nil {
		return err
	}
	if stats != nil {
		stats.PromptTokens = len(toks)
	}
	var saveFn func() error
	if c.opts.StateSave != "" {
		saveFn = func() error {
			return c.ctx.StateSaveFile(c.opts.StateSave, toks)
		}
	}
	_, err = c.runTokens(toks, 0, 0, stats, saveFn)
	return err
}

// tokenizePrompt invokes the backend tokenizer. noBos suppresses the BOS
// token when the cache already holds the start of the conversation.
func (c *Controller) tokenizePrompt(prompt string, noBos bool) ([]int, error) {
	toks, err := c.model.Tokenize(prompt, !noBos, true)
	if err != nil || len(toks) == 0 {
		if err == nil {
			err = fmt.Errorf("empty tokens")
		}
		return nil, err
	}
	return toks, nil
}
