// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tonefs/tonefs/lib/decode"
	"github.com/tonefs/tonefs/lib/mp3"
	"github.com/tonefs/tonefs/lib/patchbuf"
)

// State identifies where a pipeline is in its lifecycle. Transitions
// move strictly forward; Complete and Error are terminal.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateEncoding
	StateFinalizing
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateEncoding:
		return "encoding"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Transcoder.
type Options struct {
	// Path is the source audio file.
	Path string

	// Params selects the output stream configuration.
	Params mp3.Params

	// NewBackend constructs the frame encoder backend for this
	// pipeline. Each Transcoder gets its own instance.
	NewBackend func() mp3.FrameEncoder

	// CachedSize, when nonzero, is a previously observed exact output
	// size used as the target length instead of the estimate.
	CachedSize int64

	// OnComplete, when set, is called once with the exact output size
	// after finalization succeeds.
	OnComplete func(size int64)

	// Logger receives pipeline events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Transcoder runs one source file through the decode→encode pipeline
// into a patch buffer. A single worker goroutine produces bytes on
// demand; any number of readers may call ReadAt concurrently.
type Transcoder struct {
	path    string
	logger  *slog.Logger
	buffer  *patchbuf.Buffer
	decoder decode.Decoder
	encoder *mp3.Encoder
	mtime   time.Time

	onComplete func(size int64)

	mu       sync.Mutex
	state    State
	err      error
	want     int64         // furthest byte offset any reader has demanded
	parked   bool          // worker is waiting for demand
	demand   chan struct{} // closed and replaced when want rises
	progress chan struct{} // closed and replaced when bytes land
	stop     chan struct{} // closed by Stop
	stopped  bool
	done     chan struct{} // closed when the worker exits
}

// Open builds the pipeline for opts.Path: the decoder is opened, the
// stream parameters bound into the encode backend, source tags copied
// across, and the header rendered. On return the size estimate is
// already readable through Size; encoding itself starts lazily, driven
// by reads.
func Open(opts Options) (*Transcoder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transcoder{
		path:       opts.Path,
		logger:     logger,
		buffer:     patchbuf.New(),
		onComplete: opts.OnComplete,
		state:      StateInitializing,
		demand:     make(chan struct{}),
		progress:   make(chan struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	dec, err := decode.For(opts.Path)
	if err != nil {
		t.state = StateError
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	t.decoder = dec
	t.mtime = dec.ModTime()

	t.encoder = mp3.NewEncoder(t.buffer, opts.NewBackend(), opts.Params)
	if err := t.encoder.BindStreamParams(dec.TotalSamples(), dec.SampleRate(), dec.Channels()); err != nil {
		dec.Close()
		t.encoder.Close()
		t.state = StateError
		return nil, fmt.Errorf("%w: %w", ErrEncodeInit, err)
	}
	t.encoder.SetTags(dec.SourceTags())
	if err := t.encoder.RenderHeader(opts.CachedSize); err != nil {
		dec.Close()
		t.encoder.Close()
		t.state = StateError
		return nil, fmt.Errorf("%w: %w", ErrEncodeInit, err)
	}

	t.state = StateEncoding
	logger.Debug("transcoder open",
		"path", opts.Path,
		"samples", dec.TotalSamples(),
		"rate", dec.SampleRate(),
		"channels", dec.Channels(),
		"size", t.buffer.Size())

	go t.run()
	return t, nil
}

// run is the worker loop: park until a reader raises demand, then
// decode and encode blocks until the buffer covers it. Demand past the
// end of the audio drives the loop through finalization.
func (t *Transcoder) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for t.buffer.Len() >= t.want && !t.stopped {
			t.parked = true
			demand := t.demand
			t.mu.Unlock()
			select {
			case <-demand:
			case <-t.stop:
			}
			t.mu.Lock()
			t.parked = false
		}
		if t.stopped {
			t.mu.Unlock()
			t.teardown(ErrInvalidated)
			return
		}
		t.mu.Unlock()

		block, err := t.decoder.NextBlock()
		if err == io.EOF {
			t.finalize()
			return
		}
		if err != nil {
			t.fail(fmt.Errorf("%w: %w", ErrDecode, err))
			return
		}
		if err := t.encoder.EncodeBlock(block); err != nil {
			t.fail(fmt.Errorf("%w: %w", ErrEncodeRuntime, err))
			return
		}
		t.signalProgress()
	}
}

func (t *Transcoder) finalize() {
	t.mu.Lock()
	t.state = StateFinalizing
	t.mu.Unlock()

	if err := t.encoder.Finish(); err != nil {
		t.fail(fmt.Errorf("%w: %w", ErrEncodeRuntime, err))
		return
	}
	t.decoder.Close()
	t.encoder.Close()

	size := t.buffer.Size()
	t.mu.Lock()
	t.state = StateComplete
	t.mu.Unlock()
	t.signalProgress()

	t.logger.Debug("transcode complete", "path", t.path, "size", size)
	if t.onComplete != nil {
		t.onComplete(size)
	}
}

func (t *Transcoder) fail(err error) {
	t.decoder.Close()
	t.encoder.Close()

	t.mu.Lock()
	t.state = StateError
	t.err = err
	t.mu.Unlock()
	t.signalProgress()

	t.logger.Warn("transcode failed", "path", t.path, "error", err)
}

func (t *Transcoder) teardown(err error) {
	t.decoder.Close()
	t.encoder.Close()

	t.mu.Lock()
	if t.state != StateComplete && t.state != StateError {
		t.state = StateError
		t.err = err
	}
	t.mu.Unlock()
	t.signalProgress()
}

// signalProgress wakes every reader waiting for bytes.
func (t *Transcoder) signalProgress() {
	t.mu.Lock()
	close(t.progress)
	t.progress = make(chan struct{})
	t.mu.Unlock()
}

// ReadAt fills p from offset off, blocking until the worker has
// produced the requested range, the stream ends before it, or the
// pipeline fails. Bytes already produced stay readable after a
// mid-stream error; only the unproduced remainder reports the error.
func (t *Transcoder) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	for {
		t.mu.Lock()
		progress := t.progress
		failed := t.state == StateError
		err := t.err
		if need := off + int64(len(p)); need > t.want && !failed {
			t.want = need
			close(t.demand)
			t.demand = make(chan struct{})
		}
		t.mu.Unlock()

		n, producing, rerr := t.buffer.ReadAt(p, off)
		if rerr != nil {
			return 0, rerr
		}
		if !producing {
			return n, nil
		}
		if failed {
			return 0, err
		}

		select {
		case <-progress:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.stop:
		}
	}
}

// Size returns the current output size: the estimate (or cached exact
// size) while producing, the exact size once finalized.
func (t *Transcoder) Size() int64 {
	return t.buffer.Size()
}

// Capacity returns the bytes of buffer memory held by the pipeline.
func (t *Transcoder) Capacity() int64 {
	return t.buffer.Capacity()
}

// ModTime returns the source file modification time captured at open.
func (t *Transcoder) ModTime() time.Time {
	return t.mtime
}

// State returns the current lifecycle state.
func (t *Transcoder) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error, if any.
func (t *Transcoder) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Idle reports whether the pipeline can be discarded without
// interrupting work: the worker is parked or has reached a terminal
// state.
func (t *Transcoder) Idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parked || t.state == StateComplete || t.state == StateError
}

// Stop tears the pipeline down. Blocked readers wake with
// ErrInvalidated unless their range was already produced. Safe to
// call more than once; blocks until the worker has exited.
func (t *Transcoder) Stop() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
	t.mu.Unlock()
	<-t.done
}
