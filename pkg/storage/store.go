// Package storage persists temperature/humidity readings. Queries run
// against an in-memory binary search tree; durability comes from an
// append-only journal plus compressed monthly snapshot blocks in
// BadgerDB.
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolog/pkg/bst"
	"github.com/thermolog/pkg/types"
)

// Store is the reading store shared by the CLI and the HTTP API.
type Store interface {
	// Insert records one reading.
	Insert(ctx context.Context, r types.Reading) error

	// Search returns the reading stored for exactly ts. A miss returns
	// bst.ErrNotFound; a negative ts returns bst.ErrInvalidTimestamp.
	Search(ctx context.Context, ts int64) (types.Reading, error)

	// Scan returns readings with Start <= timestamp < End in ascending
	// timestamp order.
	Scan(ctx context.Context, req *types.ScanRequest) ([]types.Reading, error)

	// All returns every reading in ascending timestamp order.
	All(ctx context.Context) ([]types.Reading, error)

	// Len reports the number of stored readings.
	Len() int

	// Close snapshots the readings and releases the store.
	Close() error
}

// Config holds store configuration.
type Config struct {
	Path             string
	CompressionLevel int
	EnableJournal    bool
}

// DefaultConfig returns default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
		EnableJournal:    true,
	}
}

const blockPrefix = "block/"

// badgerStore keeps the queryable readings in an unbalanced BST and
// persists them as compressed monthly blocks. A RWMutex serializes
// access: the tree itself is single-writer by contract, and the HTTP
// API shares one store across handler goroutines.
type badgerStore struct {
	cfg        *Config
	db         *badger.DB
	tree       *bst.Tree
	journal    *Journal
	compressor *Compressor
	mu         sync.RWMutex
}

// Open opens (or creates) a store rooted at cfg.Path and rebuilds the
// in-memory tree from the snapshot blocks and any journal left behind
// by an unclean shutdown.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "blocks"))
	opts.Logger = nil // Badger's own logging is noise here.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open block store")
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create compressor")
	}

	s := &badgerStore{
		cfg:        cfg,
		db:         db,
		tree:       bst.New(),
		compressor: compressor,
	}

	recovered, err := s.loadBlocks()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load snapshot blocks")
	}

	if err := ReplayJournal(cfg.Path, func(r types.Reading) error {
		recovered = append(recovered, r)
		return nil
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "replay journal")
	}

	// Snapshot blocks come back in timestamp order, and inserting a
	// sorted sequence degenerates the tree into a list. Shape is purely
	// a function of insertion order, so shuffle before re-inserting.
	rand.Shuffle(len(recovered), func(i, j int) {
		recovered[i], recovered[j] = recovered[j], recovered[i]
	})
	for _, r := range recovered {
		if _, err := s.tree.Insert(r); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "rebuild tree")
		}
	}

	if cfg.EnableJournal {
		journal, err := NewJournal(cfg.Path)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "open journal")
		}
		s.journal = journal
	}

	if len(recovered) > 0 {
		logrus.WithField("readings", len(recovered)).Info("store recovered")
	}

	return s, nil
}

// Insert implements Store.Insert.
func (s *badgerStore) Insert(_ context.Context, r types.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tree.Insert(r); err != nil {
		return errors.Wrap(err, "insert reading")
	}

	if s.journal != nil {
		if err := s.journal.Append(r); err != nil {
			return errors.Wrap(err, "journal reading")
		}
	}

	return nil
}

// Search implements Store.Search. The bst sentinels pass through
// unwrapped so callers can map them to their own outcomes.
func (s *badgerStore) Search(_ context.Context, ts int64) (types.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.tree.Search(ts)
	if err != nil {
		return types.Reading{}, err
	}
	return n.Reading(), nil
}

// Scan implements Store.Scan.
func (s *badgerStore) Scan(_ context.Context, req *types.ScanRequest) ([]types.Reading, error) {
	if req == nil {
		return nil, errors.New("nil scan request")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := make([]types.Reading, 0)
	s.tree.AscendRange(req.Start, req.End, func(r types.Reading) bool {
		readings = append(readings, r)
		return true
	})
	return readings, nil
}

// All implements Store.All.
func (s *badgerStore) All(_ context.Context) ([]types.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := make([]types.Reading, 0, s.tree.Len())
	s.tree.Ascend(func(r types.Reading) bool {
		readings = append(readings, r)
		return true
	})
	return readings, nil
}

// Len implements Store.Len.
func (s *badgerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Close implements Store.Close. It snapshots the tree into monthly
// blocks; once that succeeds the journal is redundant and removed.
func (s *badgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.snapshotLocked()

	if s.journal != nil {
		if cerr := s.journal.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			RemoveJournal(s.cfg.Path)
		}
	}

	s.compressor.Close()

	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

type blockPayload struct {
	Count                 int    `json:"count"`
	CompressedTimestamps  []byte `json:"timestamps"`
	CompressedTemperature []byte `json:"temperature"`
	CompressedHumidity    []byte `json:"humidity"`
}

// snapshotLocked writes every reading in the tree into per-month
// compressed blocks. Callers must hold the write lock.
func (s *badgerStore) snapshotLocked() error {
	blocks := make(map[int64][]types.Reading)
	s.tree.Ascend(func(r types.Reading) bool {
		key := monthStart(r.Timestamp)
		blocks[key] = append(blocks[key], r)
		return true
	})

	for blockTime, readings := range blocks {
		if err := s.writeBlock(blockTime, readings); err != nil {
			return errors.Wrapf(err, "write block %d", blockTime)
		}
	}
	return nil
}

func (s *badgerStore) writeBlock(blockTime int64, readings []types.Reading) error {
	timestamps := make([]int64, len(readings))
	temps := make([]uint32, len(readings))
	hums := make([]uint32, len(readings))
	for i, r := range readings {
		timestamps[i] = r.Timestamp
		temps[i] = r.Temperature
		hums[i] = r.Humidity
	}

	compressedTS, err := s.compressor.CompressTimestamps(timestamps)
	if err != nil {
		return errors.Wrap(err, "compress timestamps")
	}
	compressedTemp, err := s.compressor.CompressReadings(temps)
	if err != nil {
		return errors.Wrap(err, "compress temperatures")
	}
	compressedHum, err := s.compressor.CompressReadings(hums)
	if err != nil {
		return errors.Wrap(err, "compress humidity")
	}

	payload := &blockPayload{
		Count:                 len(readings),
		CompressedTimestamps:  compressedTS,
		CompressedTemperature: compressedTemp,
		CompressedHumidity:    compressedHum,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal block payload")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(blockTime), payloadBytes)
	})
}

// loadBlocks reads every snapshot block back into a flat reading slice.
func (s *badgerStore) loadBlocks() ([]types.Reading, error) {
	var readings []types.Reading

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(blockPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var payload blockPayload
				if err := json.Unmarshal(val, &payload); err != nil {
					return errors.Wrap(err, "unmarshal block payload")
				}

				timestamps, err := s.compressor.DecompressTimestamps(payload.CompressedTimestamps, payload.Count)
				if err != nil {
					return errors.Wrap(err, "decompress timestamps")
				}
				temps, err := s.compressor.DecompressReadings(payload.CompressedTemperature, payload.Count)
				if err != nil {
					return errors.Wrap(err, "decompress temperatures")
				}
				hums, err := s.compressor.DecompressReadings(payload.CompressedHumidity, payload.Count)
				if err != nil {
					return errors.Wrap(err, "decompress humidity")
				}

				for i := 0; i < payload.Count; i++ {
					readings = append(readings, types.Reading{
						Timestamp:   timestamps[i],
						Temperature: temps[i],
						Humidity:    hums[i],
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return readings, err
}

// monthStart truncates ts to the first instant of its calendar month.
func monthStart(ts int64) int64 {
	t := time.Unix(ts, 0)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).Unix()
}

func blockKey(blockTime int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(blockPrefix)
	binary.Write(buf, binary.BigEndian, blockTime)
	return buf.Bytes()
}
