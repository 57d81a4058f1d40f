// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package patchbuf provides the growable byte store that assembles a
// transcoded file's bytes out of order.
//
// A Buffer holds two segments: a main segment fed by sequential
// appends (and absolute-offset patches for placeholder regions), and
// an end segment pinned relative to the target length, holding bytes
// whose position is only known relative to the final end of the file
// (the fixed-length trailer tag). The target length starts as the
// encoder's size estimate and is fixed exactly at finalization, when
// the gap between the segments is reconciled by truncating to the
// exact produced length or zero-padding out to the estimate.
//
// One producer (the transcode worker) mutates a Buffer; any number of
// readers may call ReadAt concurrently. A read never observes
// uninitialized bytes: offsets between the produced length and the
// end segment report "still producing" instead of returning garbage.
package patchbuf
