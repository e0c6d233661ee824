package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/thermolog/pkg/types"
)

const journalDirName = "journal"

// Journal is an append-only log of readings inserted since the last
// snapshot. Open replays it before accepting new inserts, so an unclean
// shutdown loses nothing that reached the log.
type Journal struct {
	dir        string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
}

// NewJournal creates a journal file under dataPath.
func NewJournal(dataPath string) (*Journal, error) {
	dir := filepath.Join(dataPath, journalDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create journal directory")
	}

	filename := filepath.Join(dir, fmt.Sprintf("journal-%d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal file")
	}

	j := &Journal{
		dir:    dir,
		file:   file,
		writer: bufio.NewWriter(file),
	}

	// Flush every second so at most one second of inserts is at risk.
	j.flushTimer = time.AfterFunc(1*time.Second, j.autoFlush)

	return j, nil
}

// Append records one reading.
func (j *Journal) Append(r types.Reading) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry")
	}

	if _, err := j.writer.Write(data); err != nil {
		return errors.Wrap(err, "write journal entry")
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write journal entry")
	}

	return nil
}

// Flush forces buffered entries to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush journal")
	}
	if err := j.file.Sync(); err != nil {
		return errors.Wrap(err, "sync journal")
	}

	return nil
}

func (j *Journal) autoFlush() {
	j.Flush()
	j.mu.Lock()
	j.flushTimer.Reset(1 * time.Second)
	j.mu.Unlock()
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.flushTimer != nil {
		j.flushTimer.Stop()
	}

	if err := j.writer.Flush(); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}

	return j.file.Close()
}

// ReplayJournal feeds every journaled reading under dataPath to handler
// in append order. The files are kept; the caller removes them once a
// snapshot covers their contents.
func ReplayJournal(dataPath string, handler func(types.Reading) error) error {
	dir := filepath.Join(dataPath, journalDirName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Nothing to replay.
		}
		return errors.Wrap(err, "read journal directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := filepath.Join(dir, entry.Name())
		if err := replayJournalFile(filename, handler); err != nil {
			return errors.Wrapf(err, "replay %s", filename)
		}
	}

	return nil
}

func replayJournalFile(filename string, handler func(types.Reading) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r types.Reading
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return errors.Wrap(err, "unmarshal journal entry")
		}

		if err := handler(r); err != nil {
			return errors.Wrap(err, "replay entry")
		}
	}

	return scanner.Err()
}

// RemoveJournal deletes all journal files under dataPath. Callers do
// this only after a snapshot has made the entries redundant.
func RemoveJournal(dataPath string) {
	dir := filepath.Join(dataPath, journalDirName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
