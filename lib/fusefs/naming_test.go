// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTranslateName(t *testing.T) {
	tests := []struct {
		in         string
		want       string
		translated bool
	}{
		{"song.flac", "song.mp3", true},
		{"song.wav", "song.mp3", true},
		{"song.FLAC", "song.mp3", true},
		{"song.mp3", "song.mp3", false},
		{"cover.jpg", "cover.jpg", false},
		{"notes.txt", "notes.txt", false},
		{"archive.flac.bak", "archive.flac.bak", false},
	}
	for _, tt := range tests {
		got, translated := TranslateName(tt.in)
		if got != tt.want || translated != tt.translated {
			t.Errorf("TranslateName(%q) = %q, %v; want %q, %v",
				tt.in, got, translated, tt.want, tt.translated)
		}
	}
}

func TestSourceFor(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.flac", "b.wav", "both.flac", "both.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if src, ok := sourceFor(dir, "a.mp3"); !ok || src != filepath.Join(dir, "a.flac") {
		t.Errorf("sourceFor(a.mp3) = %q, %v", src, ok)
	}
	if src, ok := sourceFor(dir, "b.mp3"); !ok || src != filepath.Join(dir, "b.wav") {
		t.Errorf("sourceFor(b.mp3) = %q, %v", src, ok)
	}
	// When two sources collide on one exposed name, extension order
	// decides.
	if src, ok := sourceFor(dir, "both.mp3"); !ok || src != filepath.Join(dir, "both.flac") {
		t.Errorf("sourceFor(both.mp3) = %q, %v", src, ok)
	}
	if _, ok := sourceFor(dir, "missing.mp3"); ok {
		t.Error("sourceFor(missing.mp3) resolved")
	}
	if _, ok := sourceFor(dir, "a.flac"); ok {
		t.Error("sourceFor should only resolve the exposed extension")
	}
}
