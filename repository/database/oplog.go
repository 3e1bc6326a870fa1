package database

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AARTI756/bank/domain"
)

// OpLog is the branch's append-only operation log. Entries are
// immutable once appended and serve audit and export, not recovery.
type OpLog interface {
	Append(kind domain.OpKind, accountNo int64, amount int64, txID string) error
	ByAccount(accountNo int64) []*domain.OperationLogEntry
	All() []*domain.OperationLogEntry
}

type OperationLogConfig struct {
	Dir         string
	MaxFileSize int64 // in KB
	Prefix      string
}

const KiloByte = 1024

// OperationLog stores one JSON document per line in rotating segment
// files named <prefix>_<index>.oplog. Existing segments are replayed
// on open so queries see the full history.
type OperationLog struct {
	mu          sync.Mutex
	dir         string
	prefix      string
	maxFileSize int64
	segments    []string
	active      string
	nextIndex   int
	nextSeq     int64
	entries     []*domain.OperationLogEntry
}

func NewOperationLog(config *OperationLogConfig) (*OperationLog, error) {
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(config.Dir)
	if err != nil {
		return nil, err
	}

	segments := make([]string, 0)
	for _, file := range files {
		if strings.HasPrefix(file.Name(), config.Prefix+"_") && strings.HasSuffix(file.Name(), ".oplog") {
			segments = append(segments, filepath.Join(config.Dir, file.Name()))
		}
	}

	sort.Slice(segments, func(i, j int) bool {
		return segmentIndex(segments[i]) < segmentIndex(segments[j])
	})

	l := &OperationLog{
		dir:         config.Dir,
		prefix:      config.Prefix,
		maxFileSize: config.MaxFileSize * KiloByte,
		segments:    segments,
		nextSeq:     1,
	}

	if len(segments) > 0 {
		l.active = segments[len(segments)-1]
		l.nextIndex = segmentIndex(l.active) + 1
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	return l, nil
}

func segmentIndex(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), ".oplog")
	parts := strings.Split(name, "_")
	idx, _ := strconv.Atoi(parts[len(parts)-1])
	return idx
}

func (l *OperationLog) replay() error {
	for _, segment := range l.segments {
		f, err := os.Open(segment)
		if err != nil {
			return err
		}

		reader := bufio.NewReader(f)
		for {
			line, err := reader.ReadBytes('\n')
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return err
			}

			entry := &domain.OperationLogEntry{}
			if err := json.Unmarshal(line, entry); err != nil {
				f.Close()
				return fmt.Errorf("corrupt operation log %s: %w", segment, err)
			}

			l.entries = append(l.entries, entry)
			if entry.Seq >= l.nextSeq {
				l.nextSeq = entry.Seq + 1
			}
		}

		f.Close()
	}

	return nil
}

func (l *OperationLog) rotate() error {
	name := filepath.Join(l.dir, fmt.Sprintf("%s_%d.oplog", l.prefix, l.nextIndex))

	f, err := os.Create(name)
	if err != nil {
		return err
	}

	l.active = name
	l.segments = append(l.segments, name)
	l.nextIndex++

	return f.Close()
}

// Append assigns the next sequence number and durably writes the entry
// before exposing it to queries. On write failure nothing is retained.
func (l *OperationLog) Append(kind domain.OpKind, accountNo int64, amount int64, txID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == "" {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	stat, err := os.Stat(l.active)
	if err != nil {
		return err
	}
	if stat.Size() >= l.maxFileSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	entry := &domain.OperationLogEntry{
		Seq:       l.nextSeq,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		AccountNo: accountNo,
		Amount:    amount,
		TxID:      txID,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.active, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	l.nextSeq++
	l.entries = append(l.entries, entry)

	return nil
}

func (l *OperationLog) ByAccount(accountNo int64) []*domain.OperationLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := make([]*domain.OperationLogEntry, 0)
	for _, entry := range l.entries {
		if entry.AccountNo == accountNo {
			matched = append(matched, entry)
		}
	}

	return matched
}

func (l *OperationLog) All() []*domain.OperationLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]*domain.OperationLogEntry, len(l.entries))
	copy(entries, l.entries)

	return entries
}
