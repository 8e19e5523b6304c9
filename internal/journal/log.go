// Package journal keeps an append-only log of committed ledger operations.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stakingRewards/internal/model"
)

var ErrClosed = errors.New("journal closed")

// Log writes one JSON line per committed operation. Every record gets the next
// sequence number; a reopened log continues after the last record on disk.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	seq  uint64
}

// Open opens or creates the log at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	seq, err := lastSeq(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Log{file: file, w: bufio.NewWriter(file), seq: seq}, nil
}

func lastSeq(file *os.File) (uint64, error) {
	var (
		last    uint64
		lineNum int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec struct {
			Seq uint64 `json:"seq"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return 0, fmt.Errorf("journal line %d: %w", lineNum, err)
		}
		if rec.Seq > last {
			last = rec.Seq
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}
	return last, nil
}

// Append numbers records and writes them in order. Nothing of a failed batch
// is counted.
func (l *Log) Append(records ...model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}

	seq := l.seq
	for _, record := range records {
		seq++
		record.Seq = seq
		line, err := json.Marshal(record)
		if err != nil {
			l.w.Reset(l.file)
			return fmt.Errorf("marshal operation %s: %w", record.Operation, err)
		}
		l.w.Write(line)
		l.w.WriteByte('\n')
	}
	if err := l.w.Flush(); err != nil {
		l.w.Reset(l.file)
		return fmt.Errorf("flush journal: %w", err)
	}
	l.seq = seq
	return nil
}

// Seq returns the sequence number of the last written record.
func (l *Log) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close syncs and closes the file. Later appends fail with ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := errors.Join(l.w.Flush(), l.file.Sync(), l.file.Close())
	l.file = nil
	return err
}
