package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/noctics/nox/internal/kvcache"
)

// serveLoop reads prompts from stdin until EOF or an exit sentinel and emits
// one delimited payload per turn. Per-turn failures are reported on stderr
// and the loop continues; the parent notices the missing delimiter or the
// short output.
func (c *Controller) serveLoop() error {
	opts := &c.opts
	reader := bufio.NewReader(opts.Stdin)

	marker := endMarker
	if opts.UseRS {
		marker = string([]byte{recordSeparator})
	}

	prevTokens := append([]int(nil), c.loadedTokens...)
	cacheGenerated := !opts.InputOnly

	for {
		prompt, err := readPrompt(reader, opts.UseRS)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(prompt) == "" {
			continue
		}
		if prompt == "exit" || prompt == "quit" {
			return nil
		}

		start := time.Now()
		toks, err := c.tokenizePrompt(prompt, c.appendOnly && len(prevTokens) > 0)
		if err != nil {
			fmt.Fprintf(c.stderr, "tokenization failed: %v\n", err)
			continue
		}

		var stats Stats
		var statsPtr *Stats
		if opts.Bench || opts.BenchJSON != "" {
			stats.PromptTokens = len(toks)
			statsPtr = &stats
		}

		var saveFn func() error
		if opts.StateSave != "" {
			var stateTokens []int
			if c.appendOnly {
				stateTokens = append(append([]int(nil), prevTokens...), toks...)
			} else {
				stateTokens = toks
			}
			saveFn = func() error {
				return c.ctx.StateSaveFile(opts.StateSave, stateTokens)
			}
		}

		var generated []int
		switch {
		case c.appendOnly:
			basePos := len(prevTokens)
			generated, err = c.runTokens(toks, 0, basePos, statsPtr, saveFn)
			prevTokens = append(prevTokens, toks...)
		case c.keepCache:
			common := kvcache.RetainPrefix(c.ctx, prevTokens, toks)
			generated, err = c.runTokens(toks, common, 0, statsPtr, saveFn)
			prevTokens = toks
		default:
			c.ctx.KvClear()
			generated, err = c.runTokens(toks, 0, 0, statsPtr, saveFn)
			prevTokens = toks
		}
		if err != nil {
			fmt.Fprintf(c.stderr, "inference failed: %v\n", err)
		}

		if len(generated) > 0 && cacheGenerated && (c.appendOnly || c.keepCache) {
			prevTokens = append(prevTokens, generated...)
		} else if opts.InputOnly && (c.appendOnly || c.keepCache) {
			// Keep the cache aligned to the prompt alone: drop whatever the
			// generation pass appended.
			if len(prevTokens) == 0 {
				c.ctx.KvClear()
			} else {
				c.ctx.KvSeqRm(0, len(prevTokens), -1)
			}
		}
		if opts.KVWindow > 0 {
			prevTokens = kvcache.TrimHistory(prevTokens, opts.KVWindow)
		}

		if !opts.Raw {
			c.writer.Flush()
			fmt.Fprintln(c.writer.bw)
		}
		fmt.Fprint(c.writer.bw, marker)
		c.writer.Flush()
		if !opts.Raw {
			fmt.Fprintf(c.stderr, "\ncompleted in %s\n", time.Since(start).Round(time.Millisecond))
		}
		if opts.Bench {
			stats.writeBenchLine(c.stderr)
		}
		if opts.BenchJSON != "" {
			if err := appendBenchJSON(opts.BenchJSON, stats); err != nil {
				fmt.Fprintf(c.stderr, "bench json write failed: %v\n", err)
			}
		}
	}
}
