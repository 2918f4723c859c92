package main

import "github.com/urfave/cli/v3"

var (
	modelPath   string
	maxTokens   int64
	ctxLength   int64
	batchSize   int64
	temp        float64
	topP        float64
	topK        int64
	repeatLast  int64
	repeatPen   float64
	fast        bool
	rawOut      bool
	streamBytes int64
	kvWindow    int64
	metrics     bool
	bench       bool
	benchJSON   string
	serve       bool
	serveRS     bool
	keepCache   bool
	appendOnly  bool
	inputOnly   bool
	stateSave   string
	stateLoad   string
	chatMode    bool
	cotMode     bool
	systemMsg   string
	prepackRaw  string
	prefetchRaw string
	logLevel    string
	logFormat   string
	debug       bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "path to the GGUF model (defaults to assets/models/nox.gguf)",
			Destination: &modelPath,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Usage:       "maximum tokens to generate",
			Value:       128,
			Destination: &maxTokens,
		},
		&cli.Int64Flag{
			Name:        "ctx",
			Usage:       "context length",
			Value:       1024,
			Destination: &ctxLength,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Usage:       "batch size",
			Value:       32,
			Destination: &batchSize,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temp",
			Usage:       "temperature",
			Value:       0.6,
			Destination: &temp,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "top-p",
			Value:       0.9,
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "top-k",
			Value:       40,
			Destination: &topK,
		},
		&cli.Int64Flag{
			Name:        "repeat-last-n",
			Usage:       "repetition window",
			Value:       64,
			Destination: &repeatLast,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Usage:       "repetition penalty",
			Value:       1.05,
			Destination: &repeatPen,
		},
		&cli.BoolFlag{
			Name:        "fast",
			Usage:       "fast/greedy sampling preset for lower latency",
			Destination: &fast,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "emit only generated tokens (no prefix/newlines)",
			Destination: &rawOut,
		},
		&cli.Int64Flag{
			Name:        "stream-bytes",
			Usage:       "buffer N bytes before flushing output (0 = flush each token)",
			Destination: &streamBytes,
		},
		&cli.BoolFlag{
			Name:        "metrics",
			Usage:       "emit per-token logit metrics to stderr (NR|token|max|second|margin)",
			Destination: &metrics,
		},
		&cli.BoolFlag{
			Name:        "bench",
			Usage:       "print benchmark stats to stderr",
			Destination: &bench,
		},
		&cli.StringFlag{
			Name:        "bench-json",
			Usage:       "append one JSON bench record per prompt to this file",
			Destination: &benchJSON,
		},
	}
}

func cacheFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "kv-window",
			Usage:       "sliding KV window size (0 = disabled)",
			Destination: &kvWindow,
		},
		&cli.BoolFlag{
			Name:        "keep-cache",
			Usage:       "reuse KV cache between prompts when prefix matches",
			Destination: &keepCache,
		},
		&cli.BoolFlag{
			Name:        "append",
			Usage:       "append prompts onto existing cache (no reset)",
			Destination: &appendOnly,
		},
		&cli.BoolFlag{
			Name:        "input-only",
			Usage:       "keep KV cache aligned to prompt only (do not append generated tokens)",
			Destination: &inputOnly,
		},
		&cli.StringFlag{
			Name:        "state-save",
			Usage:       "save KV/cache state to a session file after each prompt",
			Destination: &stateSave,
		},
		&cli.StringFlag{
			Name:        "state-load",
			Usage:       "load KV/cache state from a session file before running",
			Destination: &stateLoad,
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "serve",
			Usage:       "serve prompts from stdin (one per line)",
			Destination: &serve,
		},
		&cli.BoolFlag{
			Name:        "serve-rs",
			Usage:       "use ASCII record separator (0x1e) as prompt delimiter",
			Destination: &serveRS,
		},
	}
}

func chatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "chat",
			Usage:       "wrap prompts in a simple ChatML/Qwen-style chat format",
			Destination: &chatMode,
		},
		&cli.BoolFlag{
			Name:        "cot",
			Usage:       "for -chat: request chain-of-thought style reasoning (more tokens, slower end-to-end)",
			Destination: &cotMode,
		},
		&cli.StringFlag{
			Name:        "system",
			Usage:       "system prompt for -chat (default: minimal assistant)",
			Destination: &systemMsg,
		},
	}
}

func warmupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "prepack",
			Usage:       "preload+lock model weights in RAM (mlock) for faster inference (true/false, unset = auto)",
			Destination: &prepackRaw,
		},
		&cli.StringFlag{
			Name:        "prefetch",
			Usage:       "warm OS cache by sequentially reading the model file (true/false, unset = auto)",
			Destination: &prefetchRaw,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for -log-level=debug)",
			Destination: &debug,
		},
	}
}

func allFlags() []cli.Flag {
	flags := append([]cli.Flag{}, modelFlags()...)
	flags = append(flags, samplingFlags()...)
	flags = append(flags, outputFlags()...)
	flags = append(flags, cacheFlags()...)
	flags = append(flags, serveFlags()...)
	flags = append(flags, chatFlags()...)
	flags = append(flags, warmupFlags()...)
	flags = append(flags, loggingFlags()...)
	return flags
}
