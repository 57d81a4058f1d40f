// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package version

import "testing"

func TestInfo(t *testing.T) {
	defer func(v, c, d, b string) {
		Version, GitCommit, GitDirty, BuildTime = v, c, d, b
	}(Version, GitCommit, GitDirty, BuildTime)

	Version = "1.2.3"
	GitCommit = "abc1234"
	GitDirty = "false"
	BuildTime = "2026-08-30T00:00:00Z"
	if got, want := Info(), "1.2.3 (abc1234, 2026-08-30T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got, want := Info(), "1.2.3 (abc1234-dirty, 2026-08-30T00:00:00Z)"; got != want {
		t.Errorf("Info() with dirty tree = %q, want %q", got, want)
	}

	if Short() != "1.2.3" {
		t.Errorf("Short() = %q, want 1.2.3", Short())
	}
}
