// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package mp3

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-audio/audio"

	"github.com/tonefs/tonefs/lib/id3"
	"github.com/tonefs/tonefs/lib/patchbuf"
	"github.com/tonefs/tonefs/lib/tag"
)

const (
	// samplesPerFrame is fixed by the MPEG-1 Layer III format.
	samplesPerFrame = 1152

	// conversionFactor is 144 × 1000, converting a kbps bitrate and
	// a sample rate into bytes per frame.
	conversionFactor = 144000

	// maxVBRFrameSize is the largest possible frame, reserved at the
	// head of the audio data for the VBR summary block (value from
	// LAME).
	maxVBRFrameSize = 2880

	millisPerSec = 1000
)

// encoderName is embedded in the TSSE frame of every output file.
const encoderName = "tonefs"

// Params selects the target MP3 stream configuration.
type Params struct {
	// Bitrate in kbps. For VBR this is the nominal maximum.
	Bitrate int

	// VBR enables variable bitrate encoding.
	VBR bool

	// Quality is the encoder quality knob, 0 (best) through 9.
	Quality int

	// GainDB adjusts output volume in decibels.
	GainDB float64

	// KeepExact truncates the output to the exact encoded length at
	// finalization. When false the output is padded out to the
	// estimate instead, so a size published before encoding finished
	// stays valid.
	KeepExact bool
}

// StreamParams carries the source stream properties bound into a
// FrameEncoder before encoding starts.
type StreamParams struct {
	TotalSamples uint64
	SampleRate   int
	Channels     int
	Bitrate      int
	VBR          bool
	Quality      int

	// Scale is the linear gain factor applied to samples.
	Scale float64
}

// FrameEncoder is the encode backend capability: it turns PCM blocks
// into MP3 frame bytes. Implementations are driven by a single
// goroutine.
type FrameEncoder interface {
	// Init binds the stream parameters. Called exactly once, before
	// any EncodeBlock.
	Init(p StreamParams) error

	// OutputSampleRate returns the sample rate of the encoded
	// stream, known after Init.
	OutputSampleRate() int

	// EncodeBlock consumes one PCM block and returns whatever frame
	// bytes became complete. May return an empty slice while samples
	// sit in the backend's lookahead.
	EncodeBlock(block *audio.IntBuffer) ([]byte, error)

	// Flush drains the backend's internal lookahead after the last
	// block.
	Flush() ([]byte, error)

	// SummaryFrame returns the VBR summary block to patch over the
	// reserved header region, or nil when not applicable (CBR, or a
	// backend that cannot produce one). Only valid after Flush.
	SummaryFrame() []byte

	// Close releases backend resources. Safe to call on every exit
	// path, including after an Init error.
	Close() error
}

// Encoder drives a FrameEncoder and assembles the complete MP3 byte
// stream, tags included, in a patch buffer.
type Encoder struct {
	params  Params
	backend FrameEncoder
	buffer  *patchbuf.Buffer
	tags    id3.Renderer

	id3Size      int64
	totalSamples uint64
	inRate       int
	bound        bool
	finished     bool
}

// NewEncoder returns an Encoder writing through backend into buffer.
func NewEncoder(buffer *patchbuf.Buffer, backend FrameEncoder, params Params) *Encoder {
	e := &Encoder{
		params:  params,
		backend: backend,
		buffer:  buffer,
	}
	e.tags.SetText(tag.Encoder, encoderName)
	return e
}

// BindStreamParams binds the source stream properties into the
// backend and derives the track length tag. Must be called before
// RenderHeader or EncodeBlock.
func (e *Encoder) BindStreamParams(totalSamples uint64, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid stream parameters: rate %d, channels %d", sampleRate, channels)
	}
	err := e.backend.Init(StreamParams{
		TotalSamples: totalSamples,
		SampleRate:   sampleRate,
		Channels:     channels,
		Bitrate:      e.params.Bitrate,
		VBR:          e.params.VBR,
		Quality:      e.params.Quality,
		Scale:        math.Pow(10, e.params.GainDB/20),
	})
	if err != nil {
		return fmt.Errorf("initializing frame encoder: %w", err)
	}

	e.totalSamples = totalSamples
	e.inRate = sampleRate
	e.bound = true

	// The track length tag is derived here, the earliest point where
	// both sample count and rate are known.
	lengthMillis := totalSamples * millisPerSec / uint64(sampleRate)
	e.SetTag(tag.TrackLength, strconv.FormatUint(lengthMillis, 10))
	return nil
}

// SetTag adds a text tag value. Repeated fields accumulate; track and
// disc components merge into their combined frames.
func (e *Encoder) SetTag(field tag.Field, value string) {
	e.tags.SetText(field, value)
}

// SetTags copies every value and the picture from a source tag set.
func (e *Encoder) SetTags(tags *tag.Set) {
	tags.Each(func(field tag.Field, value string) {
		e.SetTag(field, value)
	})
	if p := tags.Picture(); p != nil {
		e.tags.SetPicture(*p)
	}
}

// SetPicture attaches cover art.
func (e *Encoder) SetPicture(p tag.Picture) {
	e.tags.SetPicture(p)
}

// RenderHeader writes the ID3v2 tag at the start of the buffer, pins
// the ID3v1 trailer at the end of the (estimated or cached) file
// size, and reserves the VBR summary region. cachedSize, when
// nonzero, is a previously observed exact size that overrides the
// estimate as the target length.
func (e *Encoder) RenderHeader(cachedSize int64) error {
	if !e.bound {
		return fmt.Errorf("stream parameters not bound")
	}

	v2 := e.tags.RenderV2()
	e.buffer.Append(v2, true)
	e.id3Size = int64(len(v2))

	if e.params.VBR {
		// Reserved region, patched with the summary frame once the
		// per-frame bitrates are known.
		e.buffer.Append(make([]byte, maxVBRFrameSize), true)
	}

	size := cachedSize
	if size == 0 {
		size = e.CalculateSize()
	}
	if err := e.buffer.SetTarget(size); err != nil {
		return err
	}
	if err := e.buffer.WriteEnd(e.tags.RenderV1(), 0); err != nil {
		return fmt.Errorf("pinning trailer tag: %w", err)
	}
	return nil
}

// CalculateSize estimates the finished file size from the stream
// parameters. Exact for constant bitrate; for variable bitrate the
// nominal bitrate bounds the frame sizes and one maximum frame of
// slack covers the summary block.
//
// The original formula divides by the output sample rate for CBR but
// the input sample rate for VBR; that asymmetry is preserved here
// as observed.
func (e *Encoder) CalculateSize() int64 {
	frames := (e.totalSamples + samplesPerFrame - 1) / samplesPerFrame
	audioBytes := func(rate int) int64 {
		return int64(frames * conversionFactor * uint64(e.params.Bitrate) / uint64(rate))
	}
	if e.params.VBR {
		return e.id3Size + id3.V1Length + maxVBRFrameSize + audioBytes(e.inRate)
	}
	return e.id3Size + id3.V1Length + audioBytes(e.backend.OutputSampleRate())
}

// EncodeBlock feeds one PCM block through the backend and appends the
// produced frame bytes. Appends never push the pinned trailer: frames
// past the estimate are reconciled at Finish.
func (e *Encoder) EncodeBlock(block *audio.IntBuffer) error {
	out, err := e.backend.EncodeBlock(block)
	if err != nil {
		return fmt.Errorf("encoding block: %w", err)
	}
	e.buffer.Append(out, false)
	return nil
}

// Finish flushes the backend lookahead, fixes the final length
// (truncating to the exact bytes or padding out to the estimate, per
// Params.KeepExact), and patches the VBR summary region.
func (e *Encoder) Finish() error {
	if e.finished {
		return nil
	}
	e.finished = true

	out, err := e.backend.Flush()
	if err != nil {
		return fmt.Errorf("flushing frame encoder: %w", err)
	}
	e.buffer.Append(out, e.params.KeepExact)
	if e.params.KeepExact {
		e.buffer.Truncate()
	} else {
		e.buffer.Extend()
	}

	if e.params.VBR {
		patch := e.backend.SummaryFrame()
		if len(patch) > maxVBRFrameSize {
			return fmt.Errorf("VBR summary frame of %d bytes exceeds reserved %d", len(patch), maxVBRFrameSize)
		}
		if len(patch) > 0 {
			if err := e.buffer.WriteAt(patch, e.id3Size); err != nil {
				return fmt.Errorf("patching VBR summary: %w", err)
			}
		}
	}
	return nil
}

// Close releases the backend.
func (e *Encoder) Close() error {
	return e.backend.Close()
}
