package session

import (
	"reflect"
	"strings"
	"testing"

	"github.com/noctics/nox/internal/backend/backendtest"
)

func TestServeKeepCacheReusesPrefix(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		KeepCache: true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("hello\nhello world\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}

	// Turn 1 prefills the full prompt (BOS + hello). Turn 2's prompt is a
	// prefix of the cached history, so its prefill issues zero decodes: only
	// the per-token generation decodes remain.
	want := []int{2, 1, 1, 1, 1}
	if !reflect.DeepEqual(res.be.Ctx.DecodeSizes, want) {
		t.Fatalf("decode sizes = %v, want %v", res.be.Ctx.DecodeSizes, want)
	}

	out := res.stdout.String()
	if got := strings.Count(out, endMarker); got != 2 {
		t.Fatalf("sentinel count = %d, want 2 (%q)", got, out)
	}
	payloads := strings.Split(out, endMarker)
	if payloads[0] != "worlda" || payloads[1] != "ab" {
		t.Fatalf("payloads = %q", payloads)
	}
}

func TestServeDefaultModeResetsCache(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("hello\nhello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	clears := 0
	for _, op := range res.be.Ctx.Ops {
		if op == "clear" {
			clears++
		}
	}
	if clears != 2 {
		t.Fatalf("clear count = %d, want 2 (%v)", clears, res.be.Ctx.Ops)
	}
	payloads := strings.Split(res.stdout.String(), endMarker)
	if payloads[0] != payloads[1] {
		t.Fatalf("identical prompts should give identical turns: %q", payloads)
	}
}

func TestServeRSDelimiter(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		UseRS:     true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("hello\x1ehello\x1e"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	out := res.stdout.String()
	if got := strings.Count(out, "\x1e"); got != 2 {
		t.Fatalf("record separator count = %d, want 2 (%q)", got, out)
	}
	payloads := strings.Split(strings.TrimSuffix(out, "\x1e"), "\x1e")
	if len(payloads) != 2 || payloads[0] != "worlda" || payloads[1] != "worlda" {
		t.Fatalf("payloads = %q", payloads)
	}
}

func TestServeExitSentinels(t *testing.T) {
	for _, word := range []string{"exit", "quit"} {
		t.Run(word, func(t *testing.T) {
			res := runSession(t, backendtest.Config{EOG: -1}, Options{
				Serve:     true,
				Raw:       true,
				MaxTokens: 2,
				Stdin:     strings.NewReader(word + "\nhello\n"),
			})
			if res.err != nil {
				t.Fatalf("Run returned error: %v", res.err)
			}
			if res.stdout.Len() != 0 {
				t.Fatalf("stdout = %q, want empty after %s", res.stdout.String(), word)
			}
		})
	}
}

func TestServeEOFEndsCleanly(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader(""),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if res.stdout.Len() != 0 {
		t.Fatalf("stdout = %q, want empty", res.stdout.String())
	}
}

func TestServeSkipsEmptyPrompts(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("\n   \nhello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if got := strings.Count(res.stdout.String(), endMarker); got != 1 {
		t.Fatalf("sentinel count = %d, want 1", got)
	}
}

func TestServeAppendSuppressesBOS(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:      true,
		AppendOnly: true,
		Raw:        true,
		MaxTokens:  1,
		Stdin:      strings.NewReader("hello\nworld\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	// Turn 1: BOS + hello at positions 0..1, its single generation step
	// decodes at position 2 and the generated token extends the history to
	// three entries. Turn 2 continues at position 3 with the bare word token —
	// no BOS.
	if tok := res.be.Ctx.TokenAt(3); tok != 2 {
		t.Fatalf("token at position 3 = %d, want 2 (no BOS)", tok)
	}
	payloads := strings.Split(res.stdout.String(), endMarker)
	if payloads[0] != "world" || payloads[1] != "a" {
		t.Fatalf("payloads = %q", payloads)
	}
}

func TestServeInputOnlyDropsGeneratedTail(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		KeepCache: true,
		InputOnly: true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("hello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	gotOps := strings.Join(res.be.Ctx.Ops, " ")
	if !strings.Contains(gotOps, "rm(0,2,-1)") {
		t.Fatalf("expected generated tail removal, ops = %v", res.be.Ctx.Ops)
	}
	for _, pos := range res.be.Ctx.Positions() {
		if pos > 1 {
			t.Fatalf("cache position %d survived input-only truncation", pos)
		}
	}
}

func TestServeTokenizeFailureContinues(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		Raw:       true,
		MaxTokens: 2,
		Stdin:     strings.NewReader("unknownword\nhello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if !strings.Contains(res.stderr.String(), "tokenization failed") {
		t.Fatalf("missing tokenize diagnostic: %q", res.stderr.String())
	}
	if got := strings.Count(res.stdout.String(), endMarker); got != 1 {
		t.Fatalf("sentinel count = %d, want 1 (failed turn emits none)", got)
	}
}

func TestServeWindowTrimsHistory(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		KeepCache: true,
		Raw:       true,
		MaxTokens: 2,
		KVWindow:  3,
		Stdin:     strings.NewReader("hello\nhello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	// Turn 1 history [BOS hello g1 g2] trims to the last three entries, so
	// turn 2's identical prompt shares no prefix with it and clears the
	// cache instead of reusing.
	clears := 0
	for _, op := range res.be.Ctx.Ops {
		if op == "clear" {
			clears++
		}
	}
	if clears < 2 {
		t.Fatalf("expected turn 2 to clear after trim, ops = %v", res.be.Ctx.Ops)
	}
}

func TestServeChatFlagsNoted(t *testing.T) {
	res := runSession(t, backendtest.Config{EOG: -1}, Options{
		Serve:     true,
		Chat:      true,
		Raw:       true,
		MaxTokens: 1,
		Stdin:     strings.NewReader("hello\n"),
	})
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if !strings.Contains(res.stderr.String(), "not applied in -serve mode") {
		t.Fatalf("missing chat note: %q", res.stderr.String())
	}
	// The prompt itself stays unwrapped.
	payload := strings.Split(res.stdout.String(), endMarker)[0]
	if payload != "world" {
		t.Fatalf("payload = %q, want %q", payload, "world")
	}
}
