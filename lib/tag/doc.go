// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package tag models the metadata attached to a transcoded file.
//
// A Set is an ordered multimap from a fixed Field enumeration to
// UTF-8 string values, plus at most one embedded picture. Decoders
// populate a Set from source metadata; the encoder renders it into
// the output header and trailer. A Set handed to an encoder must not
// be mutated afterward — all mutation happens between decode and the
// first render.
package tag
