package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// FileStore persists the chain as a JSONL file, one entry per line.
// Appends take an exclusive flock and a process-level mutex: each
// signature depends on the immediately preceding one, so writes must
// be strictly serialized.
type FileStore struct {
	path   string
	signer *Signer

	mu      sync.Mutex
	entries []Entry
	head    string
	nextSeq int64
	closed  bool
}

// NewFileStore opens (or creates) the chain file and loads existing
// entries to recover the head signature.
func NewFileStore(path string, signer *Signer) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		signer:  signer,
		head:    GenesisSignature,
		nextSeq: 1,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open audit chain: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines, verification will flag gaps
		}
		s.entries = append(s.entries, e)
		s.head = e.Signature
		s.nextSeq = e.Seq + 1
	}
	return scanner.Err()
}

// Append signs and writes one entry under the single-writer lock.
func (s *FileStore) Append(ctx context.Context, rec Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	e := Entry{
		Seq:       s.nextSeq,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Level:     rec.Level,
		Action:    rec.Action,
		Tool:      rec.Tool,
		Params:    Redact(rec.Params),
		Authority: rec.Authority,
		Outcome:   rec.Outcome,
		SessionID: rec.SessionID,
		ActorID:   rec.ActorID,
	}
	e.Signature = s.signer.Sign(e, s.head)

	if err := s.writeLine(e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	s.entries = append(s.entries, e)
	s.head = e.Signature
	s.nextSeq++
	return e, nil
}

func (s *FileStore) writeLine(e Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit chain: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock audit chain: %w", err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first. Pure read.
func (s *FileStore) Query(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := f.limit()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.matches(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// Verify re-derives the last limit signatures, oldest to newest. A
// single edited entry shows up as that entry plus every later one
// failing, since each signature keys off its predecessor.
func (s *FileStore) Verify(_ context.Context, limit int) (Report, error) {
	s.mu.Lock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return verifySpan(s.signer, entries, s.prevSignatureFor), nil
}

// prevSignatureFor returns the signature preceding the entry at the
// given absolute sequence.
func (s *FileStore) prevSignatureFor(seq int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Seq == seq-1 {
			return e.Signature
		}
	}
	return GenesisSignature
}

// verifySpan walks entries oldest to newest, chaining on the
// RE-DERIVED signature rather than the stored one. That is what makes
// tampering propagate: once one entry's expected signature diverges,
// every later expected signature diverges with it. prevFor supplies
// the predecessor signature for the first entry in the span.
func verifySpan(signer *Signer, entries []Entry, prevFor func(int64) string) Report {
	report := Report{Checked: len(entries)}
	if len(entries) == 0 {
		return report
	}

	prev := prevFor(entries[0].Seq)
	for _, e := range entries {
		expected := signer.Sign(e, prev)
		if expected == e.Signature {
			report.Valid++
		} else {
			report.Invalid++
			report.BadSeqs = append(report.BadSeqs, e.Seq)
		}
		prev = expected
	}
	return report
}

// Head returns the current chain head signature.
func (s *FileStore) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Close marks the store closed. The chain file needs no teardown.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
