// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package decode

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tonefs/tonefs/lib/tag"
)

// writeTestWAV writes a mono 16-bit WAV with a short sawtooth ramp
// and LIST INFO metadata, returning its path.
func writeTestWAV(t *testing.T, samples int, sampleRate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	enc.Metadata = &wav.Metadata{
		Title:   "Ramp",
		Artist:  "Tester",
		Product: "Fixtures",
		Genre:   "Jazz",
	}

	data := make([]int, samples)
	for i := range data {
		data[i] = i % 1000
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           data,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing WAV samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing WAV encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing WAV file: %v", err)
	}
	return path
}

func TestWAVStreamParams(t *testing.T) {
	path := writeTestWAV(t, 12345, 44100)
	d, err := For(path)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	defer d.Close()

	if d.TotalSamples() != 12345 {
		t.Errorf("TotalSamples = %d, want 12345", d.TotalSamples())
	}
	if d.SampleRate() != 44100 {
		t.Errorf("SampleRate = %d, want 44100", d.SampleRate())
	}
	if d.Channels() != 1 {
		t.Errorf("Channels = %d, want 1", d.Channels())
	}
	if d.ModTime().IsZero() {
		t.Error("ModTime is zero")
	}
}

func TestWAVMetadata(t *testing.T) {
	path := writeTestWAV(t, 100, 8000)
	d, err := For(path)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	defer d.Close()

	tags := d.SourceTags()
	wants := map[tag.Field]string{
		tag.Title:  "Ramp",
		tag.Artist: "Tester",
		tag.Album:  "Fixtures",
		tag.Genre:  "Jazz",
	}
	for field, want := range wants {
		if got := tags.First(field); got != want {
			t.Errorf("tag %v = %q, want %q", field, got, want)
		}
	}
}

func TestWAVBlockStreaming(t *testing.T) {
	const samples = blockSamples + 500
	path := writeTestWAV(t, samples, 44100)
	d, err := For(path)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	defer d.Close()

	var all []int
	for {
		block, err := d.NextBlock()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextBlock: %v", err)
		}
		if block.SourceBitDepth != 16 {
			t.Errorf("block SourceBitDepth = %d, want 16", block.SourceBitDepth)
		}
		all = append(all, block.Data...)
	}

	if len(all) != samples {
		t.Fatalf("streamed %d samples, want %d", len(all), samples)
	}
	// 16-bit sources pass through unshifted.
	for i := 0; i < 1000; i++ {
		if all[i] != i%1000 {
			t.Fatalf("sample %d = %d, want %d", i, all[i], i%1000)
		}
	}
}

func TestWAV8BitRecentered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "8bit.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	enc := wav.NewEncoder(f, 8000, 8, 1, 1)
	// Unsigned 8-bit: 0 is full negative, 128 is silence, 255 is
	// full positive.
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 8,
		Data:           []int{0, 128, 255},
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing WAV samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing WAV encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing WAV file: %v", err)
	}

	d, err := For(path)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	defer d.Close()

	block, err := d.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	want := []int{-0x8000, 0, 0x7f00}
	if len(block.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(block.Data), len(want))
	}
	for i, w := range want {
		if block.Data[i] != w {
			t.Errorf("sample %d = %#x, want %#x", i, block.Data[i], w)
		}
	}
}

func TestForUnknownExtension(t *testing.T) {
	if _, err := For("/nowhere/file.ogg"); err == nil {
		t.Error("For(.ogg) should fail")
	}
	if Decodable("x.ogg") {
		t.Error("Decodable(.ogg) = true")
	}
	if !Decodable("x.FLAC") || !Decodable("x.wav") {
		t.Error("Decodable should accept flac and wav regardless of case")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		sample, depth, want int
	}{
		{0x7fff, 16, 0x7fff},
		{0x7fffff, 24, 0x7fff},
		{-0x800000, 24, -0x8000},
		{0x7f, 8, 0x7f00},
	}
	for _, tt := range tests {
		if got := normalize(tt.sample, tt.depth); got != tt.want {
			t.Errorf("normalize(%#x, %d) = %#x, want %#x", tt.sample, tt.depth, got, tt.want)
		}
	}
}
