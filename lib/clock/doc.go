// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock instead of calling time.Now
// directly; tests inject Fake() and advance it deterministically.
// The transcoder cache uses this for LRU recency, so eviction order
// in tests does not depend on wall-clock timing.
package clock
