// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package id3

import (
	"bytes"

	"github.com/tonefs/tonefs/lib/tag"
)

// trailingPadding is appended after the last frame. Some players
// misbehave on tags that end flush with the final frame.
const trailingPadding = 12

const (
	frameHeaderSize = 10
	tagHeaderSize   = 10

	// encodingUTF8 is the ID3v2.4 text encoding byte for UTF-8.
	encodingUTF8 = 0x03
)

// frameIDs maps tag fields to their ID3v2 text frame IDs. Built once;
// never mutated. Track and disc fields are absent — they merge into
// TRCK/TPOS through combined handling in SetText.
var frameIDs = map[tag.Field]string{
	tag.Title:        "TIT2",
	tag.Artist:       "TPE1",
	tag.Album:        "TALB",
	tag.Genre:        "TCON",
	tag.Date:         "TDRC",
	tag.Composer:     "TCOM",
	tag.Performer:    "TOPE",
	tag.Copyright:    "TCOP",
	tag.EncodedBy:    "TENC",
	tag.Organization: "TPUB",
	tag.Conductor:    "TPE3",
	tag.AlbumArtist:  "TPE2",
	tag.Encoder:      "TSSE",
	tag.TrackLength:  "TLEN",
}

// textFrame is one ID3v2 text frame under construction. values holds
// the null-separated strings the frame will carry.
type textFrame struct {
	id     string
	values []string
}

// Renderer accumulates tag data and serializes it. Zero value is
// ready to use.
type Renderer struct {
	frames  []*textFrame
	byID    map[string]*textFrame
	picture *tag.Picture

	// v1 source values, captured as frames are set.
	v1 v1Fields
}

// SetText sets or appends a text value for the given field. Fields
// with a direct frame ID accumulate multiple values in one frame, as
// ID3v2.4 permits. Track/disc number and total fields merge into the
// combined TRCK/TPOS frames, replacing the affected half.
func (r *Renderer) SetText(field tag.Field, value string) {
	if value == "" {
		return
	}
	if id, ok := frameIDs[field]; ok {
		f := r.frame(id)
		f.values = append(f.values, value)
		r.v1.capture(field, value)
		return
	}

	var id string
	var pos tag.Position
	switch field {
	case tag.TrackNumber:
		id, pos = "TRCK", tag.Numerator
	case tag.TrackTotal:
		id, pos = "TRCK", tag.Denominator
	case tag.DiscNumber:
		id, pos = "TPOS", tag.Numerator
	case tag.DiscTotal:
		id, pos = "TPOS", tag.Denominator
	default:
		return
	}
	f := r.frame(id)
	var existing string
	if len(f.values) > 0 {
		existing = f.values[0]
	}
	f.values = []string{tag.Combine(existing, value, pos)}
	if field == tag.TrackNumber {
		r.v1.track = value
	}
}

// SetPicture attaches a picture to render as an APIC frame.
func (r *Renderer) SetPicture(p tag.Picture) {
	r.picture = &p
}

// frame returns the frame with the given ID, creating it if absent.
func (r *Renderer) frame(id string) *textFrame {
	if r.byID == nil {
		r.byID = make(map[string]*textFrame)
	}
	if f, ok := r.byID[id]; ok {
		return f
	}
	f := &textFrame{id: id}
	r.byID[id] = f
	r.frames = append(r.frames, f)
	return f
}

// RenderV2 serializes the ID3v2.4 tag: header, frames in insertion
// order, picture frame if set, then trailing padding. The returned
// slice is the complete tag including the 10-byte header.
func (r *Renderer) RenderV2() []byte {
	var body bytes.Buffer
	for _, f := range r.frames {
		writeFrame(&body, f.id, textFrameBody(f.values))
	}
	if r.picture != nil {
		writeFrame(&body, "APIC", pictureFrameBody(r.picture))
	}
	body.Write(make([]byte, trailingPadding))

	out := make([]byte, 0, tagHeaderSize+body.Len())
	out = append(out, 'I', 'D', '3', 4, 0, 0)
	out = appendSynchsafe(out, uint32(body.Len()))
	out = append(out, body.Bytes()...)
	return out
}

// textFrameBody builds a text frame body: encoding byte followed by
// the values separated by single null bytes.
func textFrameBody(values []string) []byte {
	size := 1
	for _, v := range values {
		size += len(v) + 1
	}
	body := make([]byte, 0, size)
	body = append(body, encodingUTF8)
	for i, v := range values {
		if i > 0 {
			body = append(body, 0)
		}
		body = append(body, v...)
	}
	return body
}

// pictureFrameBody builds an APIC frame body: encoding, latin-1 MIME
// type, picture type code, UTF-8 description, then the image bytes.
func pictureFrameBody(p *tag.Picture) []byte {
	body := make([]byte, 0, 1+len(p.MIME)+1+1+len(p.Description)+1+len(p.Data))
	body = append(body, encodingUTF8)
	body = append(body, p.MIME...)
	body = append(body, 0)
	body = append(body, byte(p.Type))
	body = append(body, p.Description...)
	body = append(body, 0)
	body = append(body, p.Data...)
	return body
}

// writeFrame emits a frame header (ID, synchsafe size, zero flags)
// followed by the body.
func writeFrame(w *bytes.Buffer, id string, body []byte) {
	w.WriteString(id)
	var size [4]byte
	putSynchsafe(size[:], uint32(len(body)))
	w.Write(size[:])
	w.Write([]byte{0, 0})
	w.Write(body)
}

// appendSynchsafe appends v as a 4-byte synchsafe integer (7 bits per
// byte, high bit always clear).
func appendSynchsafe(out []byte, v uint32) []byte {
	var b [4]byte
	putSynchsafe(b[:], v)
	return append(out, b[:]...)
}

func putSynchsafe(b []byte, v uint32) {
	b[0] = byte(v >> 21 & 0x7f)
	b[1] = byte(v >> 14 & 0x7f)
	b[2] = byte(v >> 7 & 0x7f)
	b[3] = byte(v & 0x7f)
}
