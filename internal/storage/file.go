package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "livewatch/pkg/logx"
)

// fileStore keeps subscriptions in memory, backed by:
//   - <prefix>.subs.snapshot.json (compacted state)
//   - <prefix>.subs.journal.jsonl (append-only ops since the snapshot)
//
// The journal is compacted into the snapshot on open and every compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex
	ix index

	snapshotPath string
	journal      *os.File
	writes       int
}

const compactEvery = 500

type journalOp string

const (
	opAdd    journalOp = "add"
	opRemove journalOp = "remove"
	opPurge  journalOp = "purge"
)

type journalRecord struct {
	Op       journalOp `json:"op"`
	Category Category  `json:"cat,omitempty"`
	ID       int64     `json:"id"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".subs.snapshot.json"
	journalPath := prefix + ".subs.journal.jsonl"

	ix := index{}
	if err := loadSnapshot(snapPath, ix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, ix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s := &fileStore{log: log, ix: ix, snapshotPath: snapPath, journal: jf}
	if err := s.compactLocked(); err != nil {
		log.Warn("subscriber store compact failed", logx.Err(err))
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journal == nil {
		return errors.New("subscriber journal closed")
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("subscriber store compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) AddSubscriber(_ context.Context, c Category, id int64) (bool, error) {
	if !c.Valid() {
		return false, ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ix.add(c, id) {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: opAdd, Category: c, ID: id}); err != nil {
		s.ix.remove(c, id)
		return false, err
	}
	return true, nil
}

func (s *fileStore) RemoveSubscription(_ context.Context, c Category, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ix.remove(c, id) {
		return false, nil
	}
	return true, s.appendLocked(journalRecord{Op: opRemove, Category: c, ID: id})
}

func (s *fileStore) RemoveSubscriber(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ix.purge(id) {
		return nil
	}
	return s.appendLocked(journalRecord{Op: opPurge, ID: id})
}

func (s *fileStore) ListSubscribers(_ context.Context, c Category) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.list(c), nil
}

func (s *fileStore) Subscriptions(_ context.Context, id int64) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.of(id), nil
}

func (s *fileStore) Counts(context.Context) (map[Category]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.counts(), nil
}

// compactLocked writes the full state to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	snap := make(map[Category][]int64, len(s.ix))
	for _, c := range Categories {
		if ids := s.ix.list(c); len(ids) > 0 {
			snap[c] = ids
		}
	}
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, ix index) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap map[Category][]int64
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for c, ids := range snap {
		if !c.Valid() {
			continue
		}
		for _, id := range ids {
			ix.add(c, id)
		}
	}
	return nil
}

// replayJournal applies journal records in order. A torn trailing line is skipped.
func replayJournal(path string, ix index) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case opAdd:
			if r.Category.Valid() {
				ix.add(r.Category, r.ID)
			}
		case opRemove:
			ix.remove(r.Category, r.ID)
		case opPurge:
			ix.purge(r.ID)
		}
	}
	return sc.Err()
}
