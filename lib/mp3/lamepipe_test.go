// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package mp3

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
)

// lameAvailable skips the test when no lame binary is installed.
func lameAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(DefaultLameBinary); err != nil {
		t.Skip("skipping: lame binary not available")
	}
}

func TestLamePipeRejectsVBR(t *testing.T) {
	var l LamePipe
	err := l.Init(StreamParams{
		TotalSamples: 1000,
		SampleRate:   44100,
		Channels:     1,
		Bitrate:      128,
		VBR:          true,
		Scale:        1,
	})
	if err == nil {
		t.Fatal("Init with VBR should fail for the pipe backend")
	}
}

func TestLamePipeEncodes(t *testing.T) {
	lameAvailable(t)

	var l LamePipe
	err := l.Init(StreamParams{
		TotalSamples: 44100,
		SampleRate:   44100,
		Channels:     1,
		Bitrate:      128,
		Scale:        1,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer l.Close()

	// One second of a 440 Hz tone.
	block := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		SourceBitDepth: 16,
		Data:           make([]int, 44100),
	}
	for i := range block.Data {
		block.Data[i] = int(20000 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}

	var out []byte
	chunk, err := l.EncodeBlock(block)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	out = append(out, chunk...)

	chunk, err = l.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out = append(out, chunk...)

	// CBR 128 kbps for one second is 16000 bytes of audio; allow
	// generous slack for lame's padding decisions.
	if len(out) < 14000 || len(out) > 20000 {
		t.Errorf("encoded %d bytes, expected roughly 16000", len(out))
	}
	// MP3 frame sync: 0xff followed by the top three sync bits.
	if out[0] != 0xff || out[1]&0xe0 != 0xe0 {
		t.Errorf("output does not start at an MP3 frame sync: % x", out[:4])
	}
	if l.SummaryFrame() != nil {
		t.Error("CBR pipe backend returned a summary frame")
	}
}

func TestLamePipeFlushDrainsChattyStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("skipping: no shell available")
	}

	// A stand-in encoder that consumes stdin, spams diagnostics on
	// stderr, and emits a little output. Flush must reap the process
	// only after both relay goroutines have finished their pipes.
	script := filepath.Join(t.TempDir(), "chatty.sh")
	const body = `#!/bin/sh
cat >/dev/null
i=0
while [ $i -lt 200 ]; do
	echo "diagnostic line $i" >&2
	i=$((i+1))
done
printf 'FRAMES'
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("writing stub encoder: %v", err)
	}

	l := LamePipe{Binary: script}
	err := l.Init(StreamParams{
		TotalSamples: 1152,
		SampleRate:   44100,
		Channels:     1,
		Bitrate:      128,
		Scale:        1,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer l.Close()

	block := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		SourceBitDepth: 16,
		Data:           make([]int, 1152),
	}
	var out []byte
	chunk, err := l.EncodeBlock(block)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	out = append(out, chunk...)

	chunk, err = l.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out = append(out, chunk...)

	if string(out) != "FRAMES" {
		t.Errorf("drained output = %q, want FRAMES", out)
	}
}
