// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package decode turns lossless source audio into PCM blocks plus
// source metadata.
//
// A Decoder produces interleaved PCM in go-audio IntBuffer blocks,
// normalized to signed 16-bit at this boundary so the encoder never
// re-derives bit-depth shifts. It also reports the stream parameters
// (total samples, sample rate, channel count) the encoder's size
// estimator needs before any audio is decoded, and the source tags.
//
// Two backends are provided: FLAC via mewkiz/flac and WAV via
// go-audio/wav. For selects by file extension.
package decode
