// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"

	"github.com/tonefs/tonefs/lib/tag"
)

// vorbisFields maps Vorbis comment names (upper-cased) to tag fields.
// TRACKTOTAL/TOTALTRACKS and DISCTOTAL/TOTALDISCS are synonyms seen
// in the wild.
var vorbisFields = map[string]tag.Field{
	"TITLE":        tag.Title,
	"ARTIST":       tag.Artist,
	"ALBUM":        tag.Album,
	"GENRE":        tag.Genre,
	"DATE":         tag.Date,
	"COMPOSER":     tag.Composer,
	"PERFORMER":    tag.Performer,
	"COPYRIGHT":    tag.Copyright,
	"ENCODED-BY":   tag.EncodedBy,
	"ENCODEDBY":    tag.EncodedBy,
	"ORGANIZATION": tag.Organization,
	"CONDUCTOR":    tag.Conductor,
	"ALBUMARTIST":  tag.AlbumArtist,
	"ALBUM ARTIST": tag.AlbumArtist,
	"TRACKNUMBER":  tag.TrackNumber,
	"TRACKTOTAL":   tag.TrackTotal,
	"TOTALTRACKS":  tag.TrackTotal,
	"DISCNUMBER":   tag.DiscNumber,
	"DISCTOTAL":    tag.DiscTotal,
	"TOTALDISCS":   tag.DiscTotal,
}

// flacDecoder reads FLAC through mewkiz/flac, interleaving subframe
// samples into blocks.
type flacDecoder struct {
	stream  *flac.Stream
	tags    *tag.Set
	modTime time.Time

	// pending holds interleaved samples decoded from a FLAC frame
	// but not yet handed out, since FLAC frame sizes do not line up
	// with block boundaries.
	pending []int
}

func openFLAC(path string) (Decoder, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing FLAC %s: %w", path, err)
	}

	d := &flacDecoder{
		stream:  stream,
		tags:    tag.NewSet(),
		modTime: info.ModTime(),
	}
	d.readMetadata()
	return d, nil
}

// readMetadata maps Vorbis comments and the first picture block into
// the tag set.
func (d *flacDecoder) readMetadata() {
	for _, block := range d.stream.Blocks {
		switch body := block.Body.(type) {
		case *meta.VorbisComment:
			for _, pair := range body.Tags {
				name := strings.ToUpper(pair[0])
				if field, ok := vorbisFields[name]; ok {
					d.tags.Add(field, pair[1])
				}
			}
		case *meta.Picture:
			if d.tags.Picture() == nil {
				d.tags.SetPicture(tag.Picture{
					MIME:        body.MIME,
					Type:        int(body.Type),
					Description: body.Desc,
					Data:        body.Data,
				})
			}
		}
	}
}

func (d *flacDecoder) TotalSamples() uint64 { return d.stream.Info.NSamples }
func (d *flacDecoder) SampleRate() int      { return int(d.stream.Info.SampleRate) }
func (d *flacDecoder) Channels() int        { return int(d.stream.Info.NChannels) }
func (d *flacDecoder) SourceTags() *tag.Set { return d.tags }
func (d *flacDecoder) ModTime() time.Time   { return d.modTime }

func (d *flacDecoder) NextBlock() (*audio.IntBuffer, error) {
	channels := d.Channels()
	want := blockSamples * channels

	for len(d.pending) < want {
		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing FLAC frame: %w", err)
		}

		bitDepth := int(d.stream.Info.BitsPerSample)
		samples := frame.Subframes[0].NSamples
		for i := 0; i < samples; i++ {
			for _, subframe := range frame.Subframes {
				d.pending = append(d.pending, normalize(int(subframe.Samples[i]), bitDepth))
			}
		}
	}

	if len(d.pending) == 0 {
		return nil, io.EOF
	}

	n := min(want, len(d.pending))
	block := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  d.SampleRate(),
		},
		SourceBitDepth: 16,
		Data:           append([]int(nil), d.pending[:n]...),
	}
	d.pending = d.pending[n:]
	return block, nil
}

func (d *flacDecoder) Close() error {
	return d.stream.Close()
}
