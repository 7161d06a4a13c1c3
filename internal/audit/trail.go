// Package audit keeps a tamper-evident record of administrative actions
// taken through the viewer, such as changing the log directory.
//
// # Hash chain
//
// Every line of the trail is one JSON entry. The hash of entry N is
//
//	SHA-256( JSON({seq, ts, action, prev_hash}) )
//
// and entry N+1 stores it as prev_hash. The first entry links to
// GenesisHash. Editing, removing, or reordering lines breaks the chain,
// which Verify and Open both detect.
//
// The file is opened with O_APPEND so each entry is written in a single
// append. Trail serialises Record calls with a mutex.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Action kinds.
const (
	ActionSetDirectory = "set_directory"
)

// Action describes one administrative change. Outcome is "ok" for accepted
// changes or the error type of a rejected one.
type Action struct {
	Kind     string `json:"kind"`
	Actor    string `json:"actor"`
	Target   string `json:"target"`
	Previous string `json:"previous,omitempty"`
	Outcome  string `json:"outcome"`
}

// Entry is one link of the chain.
type Entry struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// hashed is the part of an Entry covered by its hash.
type hashed struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	PrevHash  string    `json:"prev_hash"`
}

func (e Entry) computeHash() string {
	raw, err := json.Marshal(hashed{Seq: e.Seq, Timestamp: e.Timestamp, Action: e.Action, PrevHash: e.PrevHash})
	if err != nil {
		// Every field is a plain string, integer, or time.
		panic(fmt.Sprintf("audit: marshal entry: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Trail appends actions to a hash-chained file. Create one with Open.
type Trail struct {
	mu       sync.Mutex
	file     *os.File
	prevHash string
	seq      int64
	now      func() time.Time
}

// Open opens or creates the trail at path. An existing trail is verified
// first so that new entries continue its chain; a broken chain is an error.
func Open(path string) (*Trail, error) {
	prevHash, seq := GenesisHash, int64(0)

	existing, err := Verify(path)
	switch {
	case err == nil:
		if n := len(existing); n > 0 {
			prevHash, seq = existing[n-1].Hash, existing[n-1].Seq
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open for appending %q: %w", path, err)
	}
	return &Trail{
		file:     f,
		prevHash: prevHash,
		seq:      seq,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record appends a and returns the written entry.
func (t *Trail) Record(a Action) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{
		Seq:       t.seq + 1,
		Timestamp: t.now(),
		Action:    a,
		PrevHash:  t.prevHash,
	}
	e.Hash = e.computeHash()

	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("audit: write entry: %w", err)
	}

	t.seq = e.Seq
	t.prevHash = e.Hash
	return e, nil
}

// Close syncs and closes the trail file.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.file.Sync(); err != nil {
		_ = t.file.Close()
		return fmt.Errorf("audit: sync: %w", err)
	}
	return t.file.Close()
}

// Verify reads the trail at path and checks every link. It returns the
// entries in order, or the first error found. An empty file is valid.
func Verify(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	defer f.Close()
	return readChain(f)
}

func readChain(r io.Reader) ([]Entry, error) {
	entries := []Entry{}
	prevHash := GenesisHash

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: malformed entry after seq %d: %w", len(entries), err)
		}
		if e.PrevHash != prevHash {
			return nil, fmt.Errorf("audit: chain break at seq %d: expected prev_hash %q, got %q",
				e.Seq, prevHash, e.PrevHash)
		}
		if computed := e.computeHash(); computed != e.Hash {
			return nil, fmt.Errorf("audit: hash mismatch at seq %d: stored %q, computed %q",
				e.Seq, e.Hash, computed)
		}
		entries = append(entries, e)
		prevHash = e.Hash
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}
	return entries, nil
}
