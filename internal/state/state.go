// Package state implements the portable session-state file used by backends
// without a native session format: a fixed magic, a JSON metadata header and
// the token ids that produced the cache.
package state

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	magic   = "NOXS"
	version = uint32(1)
)

// Meta describes the saved session.
type Meta struct {
	SessionID string    `json:"session_id"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Save writes meta and tokens to path, replacing any previous file. A missing
// SessionID is filled in; CreatedAt is stamped at write time.
func Save(path string, meta Meta, tokens []int) error {
	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
	}
	meta.CreatedAt = time.Now().UTC()

	header, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode state metadata: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	write := func(v any) {
		if err == nil {
			err = binary.Write(w, binary.LittleEndian, v)
		}
	}
	_, err = w.WriteString(magic)
	write(version)
	write(uint32(len(header)))
	if err == nil {
		_, err = w.Write(header)
	}
	write(uint32(len(tokens)))
	for _, t := range tokens {
		write(int32(t))
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Load reads a state file written by Save. maxTokens bounds how many token
// ids the caller is willing to restore; a longer log is an error because the
// cache it describes cannot fit.
func Load(path string, maxTokens int) (Meta, []int, error) {
	var meta Meta

	f, err := os.Open(path)
	if err != nil {
		return meta, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return meta, nil, fmt.Errorf("read state header: %w", err)
	}
	if string(head) != magic {
		return meta, nil, fmt.Errorf("not a state file (magic %q)", string(head))
	}

	var ver uint32
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return meta, nil, fmt.Errorf("read state version: %w", err)
	}
	if ver != version {
		return meta, nil, fmt.Errorf("unsupported state version %d", ver)
	}

	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return meta, nil, fmt.Errorf("read metadata length: %w", err)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return meta, nil, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(header, &meta); err != nil {
		return meta, nil, fmt.Errorf("decode state metadata: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return meta, nil, fmt.Errorf("read token count: %w", err)
	}
	if maxTokens >= 0 && int(count) > maxTokens {
		return meta, nil, fmt.Errorf("state holds %d tokens, limit is %d", count, maxTokens)
	}

	tokens := make([]int, count)
	for i := range tokens {
		var t int32
		if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
			return meta, nil, fmt.Errorf("read token %d: %w", i, err)
		}
		tokens[i] = int(t)
	}
	return meta, tokens, nil
}
