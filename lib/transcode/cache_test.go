// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tonefs/tonefs/lib/clock"
	"github.com/tonefs/tonefs/lib/mp3"
	"github.com/tonefs/tonefs/lib/testutil"
)

func newTestCache(t *testing.T, opts CacheOptions) *Cache {
	t.Helper()
	if opts.NewBackend == nil {
		opts.NewBackend = func() mp3.FrameEncoder { return &fakeBackend{} }
	}
	if opts.Params.Bitrate == 0 {
		opts.Params = mp3.Params{Bitrate: 128}
	}
	c := NewCache(opts)
	t.Cleanup(func() { c.Close() })
	return c
}

// drain reads the handle's full stream so its pipeline completes.
func drain(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := make([]byte, h.Size())
	for n := 0; n < len(p); {
		m, err := h.ReadAt(ctx, p[n:], int64(n))
		if err != nil {
			t.Fatalf("ReadAt(%d): %v", n, err)
		}
		n += m
	}
}

func TestAcquireSharesPipeline(t *testing.T) {
	path := writeSourceWAV(t, t.TempDir(), "a.wav", 100000)
	c := newTestCache(t, CacheOptions{})

	h1, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h1.Release()
	h2, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	defer h2.Release()

	if h1.Transcoder() != h2.Transcoder() {
		t.Error("concurrent openers got distinct pipelines")
	}
}

func TestReleaseKeepsEntryCached(t *testing.T) {
	path := writeSourceWAV(t, t.TempDir(), "a.wav", 100000)
	c := newTestCache(t, CacheOptions{})

	h1, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := h1.Transcoder()
	drain(t, h1)
	h1.Release()
	h1.Release() // idempotent

	h2, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	defer h2.Release()
	if h2.Transcoder() != first {
		t.Error("released entry was not reused")
	}
}

func TestModifiedSourceRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceWAV(t, dir, "a.wav", 100000)
	c := newTestCache(t, CacheOptions{})

	h1, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := h1.Transcoder()
	h1.Release()

	// Bump the source mtime past the captured one.
	later := first.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	h2, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after modify: %v", err)
	}
	defer h2.Release()
	if h2.Transcoder() == first {
		t.Error("stale pipeline survived a source modification")
	}
	if first.State() != StateError {
		t.Errorf("stale pipeline state = %v, want %v", first.State(), StateError)
	}
}

func TestInvalidate(t *testing.T) {
	path := writeSourceWAV(t, t.TempDir(), "a.wav", 100000)
	c := newTestCache(t, CacheOptions{})

	h1, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := h1.Transcoder()
	h1.Release()

	c.Invalidate(path)
	if first.State() != StateError {
		t.Errorf("invalidated pipeline state = %v, want %v", first.State(), StateError)
	}

	h2, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after invalidate: %v", err)
	}
	defer h2.Release()
	if h2.Transcoder() == first {
		t.Error("invalidated pipeline was reused")
	}
}

func TestEvictionDropsOldestIdle(t *testing.T) {
	dir := t.TempDir()
	pathA := writeSourceWAV(t, dir, "a.wav", 100000)
	pathB := writeSourceWAV(t, dir, "b.wav", 100000)
	clk := clock.Fake(time.Unix(1000, 0))
	// Room for one encoded file but not two: the second drain must
	// push the first entry out.
	c := newTestCache(t, CacheOptions{Budget: 50000, Clock: clk})

	hA, err := c.Acquire(pathA)
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	firstA := hA.Transcoder()
	drain(t, hA)
	hA.Release()

	clk.Advance(time.Minute)
	hB, err := c.Acquire(pathB)
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	drain(t, hB)
	hB.Release()

	if got := c.Usage(); got > 50000 {
		t.Errorf("Usage = %d after eviction, want <= 50000", got)
	}
	hA2, err := c.Acquire(pathA)
	if err != nil {
		t.Fatalf("re-Acquire a: %v", err)
	}
	defer hA2.Release()
	if hA2.Transcoder() == firstA {
		t.Error("oldest idle entry was not evicted")
	}
}

func TestEvictionSkipsEntriesInUse(t *testing.T) {
	dir := t.TempDir()
	pathA := writeSourceWAV(t, dir, "a.wav", 100000)
	pathB := writeSourceWAV(t, dir, "b.wav", 100000)
	clk := clock.Fake(time.Unix(1000, 0))
	c := newTestCache(t, CacheOptions{Budget: 1, Clock: clk})

	hA, err := c.Acquire(pathA)
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer hA.Release()
	drain(t, hA)

	clk.Advance(time.Minute)
	hB, err := c.Acquire(pathB)
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	drain(t, hB)
	hB.Release()

	// A is held open, so despite being oldest it must survive; only
	// B was evictable.
	hA2, err := c.Acquire(pathA)
	if err != nil {
		t.Fatalf("re-Acquire a: %v", err)
	}
	defer hA2.Release()
	if hA2.Transcoder() != hA.Transcoder() {
		t.Error("entry with an open handle was evicted")
	}
}

func TestSizeCacheRoundTripThroughCache(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceWAV(t, dir, "a.wav", 100000)
	sizes, err := OpenSizeCache(SizeCacheOptions{Path: dir + "/sizes"})
	if err != nil {
		t.Fatalf("OpenSizeCache: %v", err)
	}
	c := newTestCache(t, CacheOptions{Sizes: sizes})

	h, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	exact := h.Size()
	drain(t, h)
	mtime := h.Transcoder().ModTime()
	h.Release()

	testutil.WaitFor(t, 5*time.Second, func() bool {
		size, ok := sizes.Lookup(path, mtime)
		return ok && size == exact
	}, "finalized size should land in the size cache")
}

func TestCachedSizeSeedsNewPipeline(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceWAV(t, dir, "a.wav", 100000)
	sizes, err := OpenSizeCache(SizeCacheOptions{Path: dir + "/sizes"})
	if err != nil {
		t.Fatalf("OpenSizeCache: %v", err)
	}

	// Seed a size distinguishable from the estimate.
	h0, err := newTestCache(t, CacheOptions{}).Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	estimate := h0.Size()
	mtime := h0.Transcoder().ModTime()
	h0.Release()
	seeded := estimate + 4000
	sizes.Put(path, mtime, seeded)

	c := newTestCache(t, CacheOptions{Sizes: sizes})
	h, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire with seeded size: %v", err)
	}
	defer h.Release()
	if h.Size() != seeded {
		t.Errorf("Size = %d, want seeded %d", h.Size(), seeded)
	}
}
