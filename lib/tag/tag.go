// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import "strings"

// Field identifies a metadata field in a Set.
type Field int

// Metadata fields. TrackNumber/TrackTotal and DiscNumber/DiscTotal
// are stored separately but render into a single combined
// "number/total" value each (see Combine).
const (
	Title Field = iota
	Artist
	Album
	Genre
	Date
	Composer
	Performer
	Copyright
	EncodedBy
	Organization
	Conductor
	AlbumArtist
	Encoder
	TrackLength
	TrackNumber
	TrackTotal
	DiscNumber
	DiscTotal
)

// Position says which half of a combined "number/total" value a
// component occupies.
type Position int

const (
	// Numerator is the part before the slash (track or disc number).
	Numerator Position = iota
	// Denominator is the part after the slash (track or disc total).
	Denominator
)

// Picture is an embedded image (typically cover art). Type is the
// semantic picture type code from the source container (3 = front
// cover in both FLAC picture blocks and ID3 APIC frames).
type Picture struct {
	MIME        string
	Type        int
	Description string
	Data        []byte
}

// entry is one field/value pair. Entries preserve insertion order so
// repeated fields render in the order the source listed them.
type entry struct {
	field Field
	value string
}

// Set is an ordered multimap of metadata fields plus an optional
// picture.
type Set struct {
	entries []entry
	picture *Picture
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Add appends a value for the given field. Empty values are ignored.
// A field may be added multiple times; all values are kept.
func (s *Set) Add(field Field, value string) {
	if value == "" {
		return
	}
	s.entries = append(s.entries, entry{field: field, value: value})
}

// Values returns all values for the given field, in insertion order.
func (s *Set) Values(field Field) []string {
	var values []string
	for _, e := range s.entries {
		if e.field == field {
			values = append(values, e.value)
		}
	}
	return values
}

// First returns the first value for the given field, or "" if the
// field is absent.
func (s *Set) First(field Field) string {
	for _, e := range s.entries {
		if e.field == field {
			return e.value
		}
	}
	return ""
}

// Each calls fn for every field/value pair in insertion order.
func (s *Set) Each(fn func(field Field, value string)) {
	for _, e := range s.entries {
		fn(e.field, e.value)
	}
}

// Len returns the number of field/value pairs in the set.
func (s *Set) Len() int {
	return len(s.entries)
}

// SetPicture attaches a picture, replacing any previous one.
func (s *Set) SetPicture(p Picture) {
	s.picture = &p
}

// Picture returns the attached picture, or nil if none.
func (s *Set) Picture() *Picture {
	return s.picture
}

// Combine merges a track or disc number component into an existing
// combined "number/total" value. existing may be empty, a bare
// number, or an already combined value. The returned string always
// keeps the other half of existing intact.
//
//	Combine("", "3", Numerator)      == "3"
//	Combine("3", "12", Denominator)  == "3/12"
//	Combine("/12", "3", Numerator)   == "3/12"
func Combine(existing, component string, pos Position) string {
	number, total := splitCombined(existing)
	switch pos {
	case Numerator:
		number = component
	case Denominator:
		total = component
	}
	if total == "" {
		return number
	}
	return number + "/" + total
}

// splitCombined splits "number/total" into its halves. A value with
// no slash is all number.
func splitCombined(value string) (number, total string) {
	if i := strings.IndexByte(value, '/'); i >= 0 {
		return value[:i], value[i+1:]
	}
	return value, ""
}
