// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build metadata for tonefs binaries.
//
// The variables are injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/tonefs/tonefs/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
