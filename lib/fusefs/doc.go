// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package fusefs mounts a read-only FUSE view of a source directory
// in which decodable audio files appear as MP3s, encoded on demand.
//
// Directory listings translate names (song.flac shows as song.mp3);
// a lookup of the MP3 name resolves back to whichever source file
// exists. Everything else in the tree, other files, directories,
// symlinks, passes through untouched. Reads are served through the
// transcode cache, so concurrent openers of one track share a single
// encoding pipeline.
package fusefs
