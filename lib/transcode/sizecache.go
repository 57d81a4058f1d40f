// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/tonefs/tonefs/lib/clock"
)

// sizeKeyDomain is the keyed-hash domain for size cache keys. Source
// paths never appear in the cache file, only their keyed hashes.
var sizeKeyDomain = func() [32]byte {
	var key [32]byte
	copy(key[:], "tonefs.sizecache.v1")
	return key
}()

// maxSizeRecordLen bounds one serialized record. A longer length
// prefix means the file is damaged past repair and the scan stops.
const maxSizeRecordLen = 512

// sizeRecord is one persisted size, serialized as CBOR with a uvarint
// length prefix.
type sizeRecord struct {
	Key   []byte `cbor:"key"`
	MTime int64  `cbor:"mtime"` // source mtime, unix nanoseconds
	Size  int64  `cbor:"size"`
	ATime int64  `cbor:"atime"` // last lookup, unix nanoseconds
}

// SizeCacheOptions configures a SizeCache.
type SizeCacheOptions struct {
	// Path is the cache file. Its directory must exist.
	Path string

	// MaxEntries bounds the record count; the least recently looked
	// up records are pruned first. Zero means unbounded.
	MaxEntries int

	// Clock supplies access timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives load and save diagnostics. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// SizeCache persists exact transcoded sizes keyed by source path and
// mtime, so a fresh mount can report final sizes without re-encoding.
// Damage to individual records is tolerated: an unreadable record is
// a miss, not an error.
type SizeCache struct {
	path   string
	max    int
	clk    clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[[32]byte]*sizeRecord
	dirty   bool
}

// OpenSizeCache loads the cache file at opts.Path, creating an empty
// cache when the file does not exist.
func OpenSizeCache(opts SizeCacheOptions) (*SizeCache, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &SizeCache{
		path:    opts.Path,
		max:     opts.MaxEntries,
		clk:     clk,
		logger:  logger,
		entries: make(map[[32]byte]*sizeRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SizeCache) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening size cache: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var skipped int
	for {
		length, err := binary.ReadUvarint(r)
		if err == io.EOF {
			break
		}
		if err != nil || length == 0 || length > maxSizeRecordLen {
			s.logger.Warn("size cache damaged, abandoning scan",
				"path", s.path, "loaded", len(s.entries))
			break
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			s.logger.Warn("size cache truncated",
				"path", s.path, "loaded", len(s.entries))
			break
		}
		var rec sizeRecord
		if err := cbor.Unmarshal(body, &rec); err != nil || len(rec.Key) != len(sizeKeyDomain) {
			skipped++
			continue
		}
		var key [32]byte
		copy(key[:], rec.Key)
		s.entries[key] = &rec
	}
	if skipped > 0 {
		s.logger.Warn("skipped unreadable size cache records",
			"path", s.path, "skipped", skipped)
	}
	return nil
}

func hashPath(path string) [32]byte {
	h, err := blake3.NewKeyed(sizeKeyDomain[:])
	if err != nil {
		panic(err)
	}
	h.Write([]byte(path))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Lookup returns the persisted exact size for path, provided the
// recorded mtime still matches. A stale record is dropped.
func (s *SizeCache) Lookup(path string, mtime time.Time) (int64, bool) {
	key := hashPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	if rec.MTime != mtime.UnixNano() {
		delete(s.entries, key)
		s.dirty = true
		return 0, false
	}
	rec.ATime = s.clk.Now().UnixNano()
	s.dirty = true
	return rec.Size, true
}

// Put records the exact size for path at mtime and persists the cache
// file.
func (s *SizeCache) Put(path string, mtime time.Time, size int64) {
	key := hashPath(path)
	now := s.clk.Now().UnixNano()
	s.mu.Lock()
	s.entries[key] = &sizeRecord{
		Key:   key[:],
		MTime: mtime.UnixNano(),
		Size:  size,
		ATime: now,
	}
	s.pruneLocked()
	s.dirty = true
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("saving size cache", "path", s.path, "error", err)
	}
}

// Delete drops the record for path, if any.
func (s *SizeCache) Delete(path string) {
	key := hashPath(path)
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.dirty = true
	}
	s.mu.Unlock()
}

// Len returns the record count.
func (s *SizeCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Flush persists pending changes.
func (s *SizeCache) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// pruneLocked drops the least recently looked up records until the
// count fits MaxEntries.
func (s *SizeCache) pruneLocked() {
	if s.max <= 0 {
		return
	}
	for len(s.entries) > s.max {
		var (
			oldestKey [32]byte
			oldest    *sizeRecord
		)
		for key, rec := range s.entries {
			if oldest == nil || rec.ATime < oldest.ATime {
				oldestKey, oldest = key, rec
			}
		}
		delete(s.entries, oldestKey)
	}
}

// saveLocked writes every record to a temporary file and renames it
// into place.
func (s *SizeCache) saveLocked() error {
	if !s.dirty {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sizecache-*")
	if err != nil {
		return fmt.Errorf("creating size cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	var prefix [binary.MaxVarintLen64]byte
	for _, rec := range s.entries {
		body, err := cbor.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encoding size record: %w", err)
		}
		n := binary.PutUvarint(prefix[:], uint64(len(body)))
		if _, err := w.Write(prefix[:n]); err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(body); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing size cache: %w", err)
	}
	s.dirty = false
	return nil
}
