// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package id3 renders ID3v2.4 and ID3v1 tags for MP3 output.
//
// The renderer accumulates text frames and an optional picture frame,
// then produces the serialized tag bytes. The ID3v2 tag goes at the
// start of the output stream before any audio frame; the ID3v1 tag is
// a fixed 128-byte block positioned at the very end of the file, which
// is why its bytes are written through the buffer's end-relative patch
// path rather than appended.
package id3
