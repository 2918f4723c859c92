package session

import (
	"os"
	"strconv"
)

// Models at or above this size get prefetch and mlock by default; smaller
// files load fast enough cold.
const autoWarmupMin = int64(1 << 30) // 1 GiB

// TriState is a boolean flag that distinguishes unset from explicit values,
// so flag, environment and auto heuristics can layer.
type TriState struct {
	Value bool
	Set   bool
}

// ParseTriState interprets a raw flag string. Empty means unset.
func ParseTriState(s string) (TriState, error) {
	if s == "" {
		return TriState{}, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return TriState{}, err
	}
	return TriState{Value: v, Set: true}, nil
}

// Resolve returns the effective value: explicit flag first, then the
// environment variable, then the auto default.
func (t TriState) Resolve(envKey string, auto bool) bool {
	if t.Set {
		return t.Value
	}
	if envKey != "" {
		if v, ok := envBool(envKey); ok {
			return v
		}
	}
	return auto
}

func envBool(name string) (bool, bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return parsed, true
}

// AutoWarmup inspects the model file size and returns the default prefetch
// and prepack settings. A stat failure disables both; the load path will
// report the real error.
func AutoWarmup(modelPath string) (prefetch, prepack bool) {
	info, err := os.Stat(modelPath)
	if err != nil {
		return false, false
	}
	size := info.Size()
	return size >= autoWarmupMin, size >= autoWarmupMin
}

// DetectThreads returns the backend thread count: NOX_NUM_THREADS when it
// parses to a positive integer, else 4.
func DetectThreads() int {
	if v := os.Getenv("NOX_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 4
}
