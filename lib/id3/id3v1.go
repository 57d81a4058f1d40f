// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package id3

import (
	"strconv"
	"strings"

	"github.com/tonefs/tonefs/lib/tag"
)

// V1Length is the fixed size of an ID3v1 tag. The tag always occupies
// the final V1Length bytes of the file.
const V1Length = 128

// noGenre is the ID3v1 genre byte for "no genre matched".
const noGenre = 0xff

// v1Fields holds the subset of tag data an ID3v1 block can carry.
type v1Fields struct {
	title  string
	artist string
	album  string
	year   string
	track  string
	genre  string
}

// capture records the first value seen for each v1-relevant field.
func (f *v1Fields) capture(field tag.Field, value string) {
	set := func(dst *string) {
		if *dst == "" {
			*dst = value
		}
	}
	switch field {
	case tag.Title:
		set(&f.title)
	case tag.Artist:
		set(&f.artist)
	case tag.Album:
		set(&f.album)
	case tag.Date:
		set(&f.year)
	case tag.Genre:
		set(&f.genre)
	}
}

// RenderV1 serializes the ID3v1.1 tag: "TAG" magic, fixed-width
// title/artist/album/year, 28-byte comment, track byte, genre byte.
func (r *Renderer) RenderV1() []byte {
	out := make([]byte, V1Length)
	copy(out, "TAG")
	putFixed(out[3:33], r.v1.title)
	putFixed(out[33:63], r.v1.artist)
	putFixed(out[63:93], r.v1.album)
	putFixed(out[93:97], yearOf(r.v1.year))
	// out[97:125] is the comment, left empty. out[125] stays zero to
	// mark the v1.1 layout with a track byte at out[126].
	if n, err := strconv.Atoi(numberPart(r.v1.track)); err == nil && n > 0 && n < 256 {
		out[126] = byte(n)
	}
	out[127] = genreIndex(r.v1.genre)
	return out
}

// putFixed copies s into dst, truncated to fit, zero padded.
func putFixed(dst []byte, s string) {
	copy(dst, s)
}

// yearOf extracts a 4-digit year from a date value such as "2004" or
// "2004-06-01".
func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}

// numberPart strips a "/total" suffix from a combined track value.
func numberPart(track string) string {
	if i := strings.IndexByte(track, '/'); i >= 0 {
		return track[:i]
	}
	return track
}

// v1Genres is the standard ID3v1 genre table (indexes 0-79).
var v1Genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk",
	"Grunge", "Hip-Hop", "Jazz", "Metal", "New Age", "Oldies",
	"Other", "Pop", "R&B", "Rap", "Reggae", "Rock", "Techno",
	"Industrial", "Alternative", "Ska", "Death Metal", "Pranks",
	"Soundtrack", "Euro-Techno", "Ambient", "Trip-Hop", "Vocal",
	"Jazz+Funk", "Fusion", "Trance", "Classical", "Instrumental",
	"Acid", "House", "Game", "Sound Clip", "Gospel", "Noise",
	"AlternRock", "Bass", "Soul", "Punk", "Space", "Meditative",
	"Instrumental Pop", "Instrumental Rock", "Ethnic", "Gothic",
	"Darkwave", "Techno-Industrial", "Electronic", "Pop-Folk",
	"Eurodance", "Dream", "Southern Rock", "Comedy", "Cult",
	"Gangsta", "Top 40", "Christian Rap", "Pop/Funk", "Jungle",
	"Native American", "Cabaret", "New Wave", "Psychadelic", "Rave",
	"Showtunes", "Trailer", "Lo-Fi", "Tribal", "Acid Punk",
	"Acid Jazz", "Polka", "Retro", "Musical", "Rock & Roll",
	"Hard Rock",
}

// genreIndex maps a genre name to its ID3v1 index, or noGenre when
// the name is not in the table.
func genreIndex(name string) byte {
	for i, g := range v1Genres {
		if strings.EqualFold(g, name) {
			return byte(i)
		}
	}
	return noGenre
}
