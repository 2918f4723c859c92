package session

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Stats collects per-prompt timing and token counts.
type Stats struct {
	PromptTokens    int
	GeneratedTokens int
	Prefill         time.Duration
	Generate        time.Duration
}

// writeBenchLine emits the parent-parsed bench record to w.
func (s Stats) writeBenchLine(w io.Writer) {
	total := s.Prefill + s.Generate
	tokPerSec := 0.0
	if s.Generate > 0 {
		tokPerSec = float64(s.GeneratedTokens) / s.Generate.Seconds()
	}
	fmt.Fprintf(
		w,
		"bench: prompt_tokens=%d generated_tokens=%d prefill_ms=%d gen_ms=%d total_ms=%d tok_s=%.2f\n",
		s.PromptTokens,
		s.GeneratedTokens,
		s.Prefill.Milliseconds(),
		s.Generate.Milliseconds(),
		total.Milliseconds(),
		tokPerSec,
	)
}

type benchRecord struct {
	PromptTokens    int     `json:"prompt_tokens"`
	GeneratedTokens int     `json:"generated_tokens"`
	PrefillMs       int64   `json:"prefill_ms"`
	GenMs           int64   `json:"gen_ms"`
	TotalMs         int64   `json:"total_ms"`
	TokS            float64 `json:"tok_s"`
	Timestamp       string  `json:"ts"`
}

// appendBenchJSON appends one JSON record per completed prompt to path.
func appendBenchJSON(path string, s Stats) error {
	total := s.Prefill + s.Generate
	tokPerSec := 0.0
	if s.Generate > 0 {
		tokPerSec = float64(s.GeneratedTokens) / s.Generate.Seconds()
	}
	rec := benchRecord{
		PromptTokens:    s.PromptTokens,
		GeneratedTokens: s.GeneratedTokens,
		PrefillMs:       s.Prefill.Milliseconds(),
		GenMs:           s.Generate.Milliseconds(),
		TotalMs:         total.Milliseconds(),
		TokS:            tokPerSec,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
