// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"

	"github.com/tonefs/tonefs/lib/tag"
)

// blockSamples is the number of samples per channel delivered in one
// PCM block.
const blockSamples = 4096

// Decoder produces PCM blocks and metadata from one source file.
// NextBlock returns io.EOF after the last block. Implementations are
// not safe for concurrent use; the transcode worker is the only
// caller.
type Decoder interface {
	// TotalSamples returns the number of samples per channel in the
	// source stream.
	TotalSamples() uint64

	// SampleRate returns the source sample rate in Hz.
	SampleRate() int

	// Channels returns the source channel count.
	Channels() int

	// NextBlock returns the next interleaved PCM block, normalized
	// to signed 16-bit. io.EOF signals the end of the stream.
	NextBlock() (*audio.IntBuffer, error)

	// SourceTags returns the metadata read from the source.
	SourceTags() *tag.Set

	// ModTime returns the source file's modification time.
	ModTime() time.Time

	// Close releases the source file and decoder state.
	Close() error
}

// Extensions returns the source extensions (without dot) this package
// can decode.
func Extensions() []string {
	return []string{"flac", "wav"}
}

// Decodable reports whether path has a decodable extension.
func Decodable(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range Extensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// For opens a Decoder for the given source path, selected by file
// extension.
func For(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return openFLAC(path)
	case ".wav":
		return openWAV(path)
	default:
		return nil, fmt.Errorf("no decoder for %q", filepath.Ext(path))
	}
}

// normalize shifts a sample from its source bit depth to 16-bit.
func normalize(sample int, bitDepth int) int {
	switch {
	case bitDepth > 16:
		return sample >> (bitDepth - 16)
	case bitDepth < 16:
		return sample << (16 - bitDepth)
	default:
		return sample
	}
}
