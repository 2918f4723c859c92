package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/noctics/nox/internal/backend"
	"github.com/noctics/nox/internal/gguf"
	"github.com/noctics/nox/internal/logger"
	"github.com/noctics/nox/internal/logits"
	"github.com/noctics/nox/internal/session"
)

func main() {
	app := rootCmd()
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:  "nox",
		Usage: "Local GGUF inference runner",
		Flags: allFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, LoadConfig())

			if debug {
				logLevel = "debug"
			}
			log := logger.New(os.Stderr, logFormat, logger.ParseLevel(logLevel))

			prepack, err := session.ParseTriState(prepackRaw)
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid -prepack value %q", prepackRaw), 1)
			}
			prefetch, err := session.ParseTriState(prefetchRaw)
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid -prefetch value %q", prefetchRaw), 1)
			}

			var prompt string
			if !serve {
				prompt = strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
				if prompt == "" {
					info, err := os.Stdin.Stat()
					if err == nil && info.Mode()&os.ModeCharDevice == 0 {
						in, _ := io.ReadAll(os.Stdin)
						prompt = strings.TrimSpace(string(in))
					}
				}
				if prompt == "" && stateLoad == "" {
					return cli.Exit("provide a prompt via args or stdin", 1)
				}
				if prompt == "" && stateLoad != "" {
					return cli.Exit("provide a prompt or use -serve with -state-load", 1)
				}
			}

			if modelPath == "" {
				root, _ := os.Getwd()
				modelPath = filepath.Join(root, "assets", "models", "nox.gguf")
			}

			threads := session.DetectThreads()
			autoPrefetch, autoPrepack := session.AutoWarmup(modelPath)
			prefetchOn := prefetch.Resolve("NOX_PREFETCH", autoPrefetch)
			prepackOn := prepack.Resolve("NOX_PREPACK", autoPrepack)

			info, err := gguf.Inspect(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to load model: %v", err), 1)
			}
			log.Debug("model preflight",
				"path", modelPath,
				"arch", info.Arch(),
				"model_ctx", info.ContextLength(),
				"gguf_version", info.Version,
				"tensors", info.TensorCount,
			)

			sampling := logits.Resolve(logits.Params{
				Temp:          temp,
				TopP:          topP,
				TopK:          int(topK),
				RepeatLastN:   int(repeatLast),
				RepeatPenalty: repeatPen,
			}, fast)

			be, err := backend.New()
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to initialize backend: %v", err), 1)
			}

			ctrl := session.New(session.Options{
				ModelPath:   modelPath,
				MaxTokens:   int(maxTokens),
				CtxLength:   int(ctxLength),
				BatchSize:   int(batchSize),
				Threads:     threads,
				Sampling:    sampling,
				Raw:         rawOut,
				StreamBytes: int(streamBytes),
				KVWindow:    int(kvWindow),
				Metrics:     metrics,
				Bench:       bench,
				BenchJSON:   benchJSON,
				Serve:       serve,
				UseRS:       serveRS,
				KeepCache:   keepCache,
				AppendOnly:  appendOnly,
				InputOnly:   inputOnly,
				StateSave:   stateSave,
				StateLoad:   stateLoad,
				Chat:        chatMode,
				CoT:         cotMode,
				System:      systemMsg,
				Prepack:     prepackOn,
				Prefetch:    prefetchOn,
				Prompt:      prompt,
				Stdin:       os.Stdin,
				Stdout:      os.Stdout,
				Stderr:      os.Stderr,
				Log:         log,
			})
			if err := ctrl.Run(be); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}
