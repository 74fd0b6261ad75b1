// internal/state/decision.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/momentcast/internal/types"
)

// DecisionLog is a JSONL-backed append-only record of every classified
// paragraph. Records are stored per-session in sessions/<sessionID>/decisions.jsonl.
type DecisionLog struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
	seqs  map[types.SessionID]int64
}

// NewDecisionLog creates a new file-backed DecisionLog rooted at the given directory.
func NewDecisionLog(root string) *DecisionLog {
	return &DecisionLog{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
		seqs:  make(map[types.SessionID]int64),
	}
}

func (d *DecisionLog) getLock(sessionID types.SessionID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	if lock, ok := d.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	d.locks[sessionID] = lock
	return lock
}

func (d *DecisionLog) logPath(sessionID types.SessionID) string {
	return filepath.Join(d.root, "sessions", string(sessionID), "decisions.jsonl")
}

// count reads the log and counts lines. Caller must hold the session lock.
func (d *DecisionLog) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(d.logPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan decision log: %w", err)
	}
	return count, nil
}

// lastSeq returns the cached sequence for the session, reading the file
// once on first use. Caller must hold the session lock.
func (d *DecisionLog) lastSeq(sessionID types.SessionID) (int64, error) {
	d.mu.Lock()
	seq, ok := d.seqs[sessionID]
	d.mu.Unlock()
	if ok {
		return seq, nil
	}
	return d.count(sessionID)
}

// Append adds a record with an auto-incremented sequence number.
func (d *DecisionLog) Append(_ context.Context, rec *types.DecisionRecord) error {
	lock := d.getLock(rec.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.logPath(rec.SessionID)), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	seq, err := d.lastSeq(rec.SessionID)
	if err != nil {
		return err
	}
	rec.Seq = seq + 1
	if rec.ID == "" {
		rec.ID = types.NewDecisionID()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	f, err := os.OpenFile(d.logPath(rec.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}

	d.mu.Lock()
	d.seqs[rec.SessionID] = rec.Seq
	d.mu.Unlock()
	return nil
}

// Tail returns the last N records for the given session.
func (d *DecisionLog) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]*types.DecisionRecord, error) {
	lock := d.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(d.logPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var records []*types.DecisionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec types.DecisionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan decision log: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Count returns the number of records for the given session.
func (d *DecisionLog) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := d.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return d.lastSeq(sessionID)
}
