// Package session drives the runner: it owns model, context, batch and
// sampler for the process lifetime, runs the single-shot and serve paths,
// and keeps the logical token history aligned with the KV cache.
package session

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/noctics/nox/internal/backend"
	"github.com/noctics/nox/internal/logger"
	"github.com/noctics/nox/internal/logits"
)

// Options are the fully resolved operational parameters for one process run.
// Flag parsing, config-file defaults and tri-state resolution happen before
// this struct is built.
type Options struct {
	ModelPath string
	MaxTokens int
	CtxLength int
	BatchSize int
	Threads   int

	Sampling logits.Params

	Raw         bool
	StreamBytes int
	KVWindow    int
	Metrics     bool
	Bench       bool
	BenchJSON   string

	Serve      bool
	UseRS      bool
	KeepCache  bool
	AppendOnly bool
	InputOnly  bool

	StateSave string
	StateLoad string

	Chat   bool
	CoT    bool
	System string

	Prepack  bool
	Prefetch bool

	// Prompt is the single-shot prompt text; empty in serve mode.
	Prompt string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Log    logger.Logger
}

// Controller owns the backend resources and executes the run.
type Controller struct {
	opts    Options
	model   backend.Model
	ctx     backend.Context
	batch   backend.Batch
	sampler backend.Sampler
	writer  *StreamWriter
	stderr  io.Writer
	log     logger.Logger

	loadedTokens []int
	appendOnly   bool
	keepCache    bool
}

// New fills defaults for an unset logger and unset standard streams.
func New(opts Options) *Controller {
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Controller{opts: opts, stderr: opts.Stderr, log: opts.Log}
}

// Run acquires every backend resource, executes the configured mode and
// releases in reverse order. Setup errors carry the parent-facing
// "failed to <op>" phrasing; later errors are prefixed "inference failed",
// "tokenization failed" or "serve loop failed". The caller only prints and
// exits.
func (c *Controller) Run(be backend.Backend) error {
	opts := &c.opts

	fmt.Fprintf(c.stderr, "loading model: %s (threads=%d ctx=%d batch=%d)\n",
		opts.ModelPath, opts.Threads, opts.CtxLength, opts.BatchSize)
	if opts.Prepack {
		if be.SupportsMlock() {
			fmt.Fprintln(c.stderr, "prepack: mlock enabled")
		} else {
			fmt.Fprintln(c.stderr, "prepack: mlock not supported on this device")
		}
	}
	if opts.Prefetch {
		if err := prefetchModel(opts.ModelPath); err != nil {
			fmt.Fprintf(c.stderr, "prefetch failed: %v\n", err)
		}
	}

	model, err := be.Load(opts.ModelPath, backend.LoadOptions{
		UseMmap:  true,
		UseMlock: opts.Prepack,
	})
	if err != nil {
		return fmt.Errorf("failed to load model: %v", err)
	}
	c.model = model
	defer model.Close()

	ctx, err := be.NewContext(model, backend.ContextOptions{
		CtxLength: opts.CtxLength,
		BatchSize: opts.BatchSize,
		Seqs:      1,
		Threads:   opts.Threads,
	})
	if err != nil {
		return fmt.Errorf("failed to create context: %v", err)
	}
	c.ctx = ctx
	defer ctx.Close()

	if opts.StateLoad != "" {
		c.loadedTokens, err = ctx.StateLoadFile(opts.StateLoad, opts.CtxLength)
		if err != nil {
			return fmt.Errorf("failed to load state: %v", err)
		}
		c.log.Debug("state restored", "path", opts.StateLoad, "tokens", len(c.loadedTokens))
	}

	sampler, err := ctx.NewSampler(backend.SamplerOptions{
		TopK:          opts.Sampling.TopK,
		TopP:          float32(opts.Sampling.TopP),
		Temp:          float32(opts.Sampling.Temp),
		RepeatLastN:   opts.Sampling.RepeatLastN,
		RepeatPenalty: float32(opts.Sampling.RepeatPenalty),
	})
	if err != nil {
		return fmt.Errorf("failed to create sampler: %v", err)
	}
	c.sampler = sampler

	batch, err := ctx.NewBatch(opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to allocate batch: %v", err)
	}
	c.batch = batch
	defer batch.Free()

	// Loaded state without an explicit cache mode behaves as a continued
	// conversation.
	c.appendOnly = opts.AppendOnly
	c.keepCache = opts.KeepCache
	if len(c.loadedTokens) > 0 && !c.appendOnly && !c.keepCache {
		c.appendOnly = true
	}

	c.writer = NewStreamWriter(opts.Stdout, opts.StreamBytes)

	if opts.Serve {
		if opts.Chat || opts.CoT || opts.System != "" {
			fmt.Fprintln(c.stderr, "note: -chat/-cot/-system are not applied in -serve mode")
		}
		if err := c.serveLoop(); err != nil {
			return fmt.Errorf("serve loop failed: %v", err)
		}
		return nil
	}

	return c.singleShot(opts.Prompt)
}

func (c *Controller) singleShot(prompt string) error {
	opts := &c.opts

	if opts.Chat || opts.CoT || opts.System != "" {
		prompt = chatPrompt(systemText(opts.System, opts.Chat, opts.CoT), prompt)
	}

	start := time.Now()
	var stats Stats
	var statsPtr *Stats
	if opts.Bench || opts.BenchJSON != "" {
		statsPtr = &stats
	}

	if len(c.loadedTokens) == 0 {
		if err := c.runPrompt(prompt, statsPtr); err != nil {
			return inferenceError(err)
		}
	} else {
		toks, err := c.tokenizePrompt(prompt, true)
		if err != nil {
			return fmt.Errorf("tokenization failed: %v", err)
		}
		if statsPtr != nil {
			statsPtr.PromptTokens = len(toks)
		}
		var saveFn func() error
		if opts.StateSave != "" {
			stateTokens := append(append([]int(nil), c.loadedTokens...), toks...)
			saveFn = func() error {
				return c.ctx.StateSaveFile(opts.StateSave, stateTokens)
			}
		}
		if _, err := c.runTokens(toks, 0, len(c.loadedTokens), statsPtr, saveFn); err != nil {
			return inferenceError(err)
		}
		c.loadedTokens = append(c.loadedTokens, toks...)
	}

	if !opts.Raw {
		c.writer.Flush()
		fmt.Fprintln(c.writer.bw)
		c.writer.bw.Flush()
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
	return nil
}

func inferenceError(err error) error {
	return fmt.Errorf("inference failed: %v", err)
}
