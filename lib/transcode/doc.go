// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcode orchestrates the decode→encode→buffer pipeline
// for virtual files and caches live pipelines across openers.
//
// A Transcoder owns one decoder, one encoder, and one patch buffer.
// Opening it binds stream parameters, copies source tags, and renders
// the header so the size estimate is available immediately; a single
// worker goroutine then produces audio bytes on demand, paced by the
// furthest offset any reader has asked for. Readers block on a
// progress channel until the worker has produced enough bytes or the
// pipeline reaches a terminal state. A read touching the end-pinned
// trailer region simply raises demand past the end of the audio,
// which drives the worker through finalization.
//
// The Cache shares one Transcoder among all concurrent openers of the
// same source path, evicts least-recently-used idle pipelines when
// buffer memory exceeds the configured budget, and invalidates
// entries whose source file changed. An optional SizeCache persists
// final sizes across restarts so getattr after a cold start does not
// pay for a header decode.
package transcode
