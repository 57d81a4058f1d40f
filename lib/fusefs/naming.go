// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tonefs/tonefs/lib/decode"
)

// targetExt is the extension under which decodable sources appear.
const targetExt = ".mp3"

// TranslateName returns the name a source file is exposed under and
// whether it is translated at all. Non-audio names come back
// unchanged.
func TranslateName(name string) (string, bool) {
	if !decode.Decodable(name) {
		return name, false
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + targetExt, true
}

// sourceFor resolves an exposed MP3 name back to the source file
// that exists in dir, trying each decodable extension in order.
func sourceFor(dir, name string) (string, bool) {
	if !strings.EqualFold(filepath.Ext(name), targetExt) {
		return "", false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range decode.Extensions() {
		candidate := filepath.Join(dir, stem+"."+ext)
		if info, err := os.Lstat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}
