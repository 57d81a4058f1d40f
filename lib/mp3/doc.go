// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package mp3 assembles MP3 output around a pluggable frame encoder.
//
// The Encoder owns everything about the output stream except the
// frame bit-packing itself: it renders the ID3v2 header and the
// ID3v1 trailer into the patch buffer, estimates the finished file
// size before a single audio byte exists, feeds PCM blocks to a
// FrameEncoder backend, and finalizes the buffer once the source is
// exhausted (flush, exact length, trailer, VBR summary patch).
//
// The size estimate builds on MP3 framing: every frame carries 1152
// samples, so bytes-per-frame is 144 × bitrate(bps) / sample rate,
// or 144000 with the bitrate in kbps. For constant bitrate the
// estimate is exact; variable bitrate adds one maximum-size frame of
// slack for the summary header and treats the nominal bitrate as a
// ceiling.
package mp3
