// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import "errors"

var (
	// ErrDecode reports that the source file could not be opened or
	// decoded. The wrapped cause carries the codec detail.
	ErrDecode = errors.New("source decode failed")

	// ErrEncodeInit reports that the encoder rejected the stream
	// parameters before any audio was produced.
	ErrEncodeInit = errors.New("encoder initialization failed")

	// ErrEncodeRuntime reports an encoder failure after streaming
	// began. Bytes already produced remain readable.
	ErrEncodeRuntime = errors.New("encoder failed mid-stream")

	// ErrInvalidated reports that the pipeline was torn down because
	// the source file changed or the cache entry was removed.
	ErrInvalidated = errors.New("transcoder invalidated")
)
