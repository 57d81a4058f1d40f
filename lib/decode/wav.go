// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tonefs/tonefs/lib/tag"
)

// wavDecoder streams PCM from a RIFF/WAV file through go-audio/wav.
type wavDecoder struct {
	file    *os.File
	dec     *wav.Decoder
	tags    *tag.Set
	modTime time.Time

	totalSamples uint64
	bitDepth     int
	done         bool
}

func openWAV(path string) (Decoder, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	// The LIST INFO chunk usually sits after the data chunk, so
	// metadata is read from a separate handle to keep the streaming
	// handle positioned at the PCM data.
	tags, err := readWAVMetadata(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.WasPCMAccessed() {
		if err := dec.FwdToPCM(); err != nil {
			f.Close()
			return nil, fmt.Errorf("seeking to PCM data in %s: %w", path, err)
		}
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 || dec.BitDepth == 0 {
		f.Close()
		return nil, fmt.Errorf("malformed WAV header in %s", path)
	}

	bytesPerSample := int(dec.BitDepth) / 8
	frameSize := bytesPerSample * int(dec.NumChans)
	total := uint64(dec.PCMLen()) / uint64(frameSize)

	return &wavDecoder{
		file:         f,
		dec:          dec,
		tags:         tags,
		modTime:      info.ModTime(),
		totalSamples: total,
		bitDepth:     int(dec.BitDepth),
	}, nil
}

// readWAVMetadata opens path just long enough to scan its metadata
// chunks into a tag set.
func readWAVMetadata(path string) (*tag.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadMetadata()

	tags := tag.NewSet()
	m := dec.Metadata
	if m == nil {
		return tags, nil
	}
	tags.Add(tag.Title, m.Title)
	tags.Add(tag.Artist, m.Artist)
	tags.Add(tag.Album, m.Product)
	tags.Add(tag.Genre, m.Genre)
	tags.Add(tag.Date, m.CreationDate)
	tags.Add(tag.Copyright, m.Copyright)
	tags.Add(tag.EncodedBy, m.Software)
	tags.Add(tag.TrackNumber, m.TrackNbr)
	return tags, nil
}

func (d *wavDecoder) TotalSamples() uint64 { return d.totalSamples }
func (d *wavDecoder) SampleRate() int      { return int(d.dec.SampleRate) }
func (d *wavDecoder) Channels() int        { return int(d.dec.NumChans) }
func (d *wavDecoder) SourceTags() *tag.Set { return d.tags }
func (d *wavDecoder) ModTime() time.Time   { return d.modTime }

func (d *wavDecoder) NextBlock() (*audio.IntBuffer, error) {
	if d.done {
		return nil, io.EOF
	}

	block := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: d.Channels(),
			SampleRate:  d.SampleRate(),
		},
		Data: make([]int, blockSamples*d.Channels()),
	}
	n, err := d.dec.PCMBuffer(block)
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}
	if n == 0 {
		d.done = true
		return nil, io.EOF
	}

	block.Data = block.Data[:n]
	// 8-bit WAV stores unsigned samples (0..255); re-center before
	// widening so silence lands at zero.
	var bias int
	if d.bitDepth == 8 {
		bias = 128
	}
	for i, sample := range block.Data {
		block.Data[i] = normalize(sample-bias, d.bitDepth)
	}
	block.SourceBitDepth = 16
	return block, nil
}

func (d *wavDecoder) Close() error {
	return d.file.Close()
}
