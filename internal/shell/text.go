package shell

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Text is a chunk of process output: the bytes that were read and the
// result of decoding them. Lines keep their terminator, so an empty line
// is "\n" and never the zero Text.
type Text struct {
	raw     []byte
	decoded string
	valid   bool
}

// String returns the decoded text, or the raw bytes as a string when
// decoding failed.
func (t Text) String() string {
	if t.valid {
		return t.decoded
	}
	return string(t.raw)
}

// Bytes returns the bytes exactly as the process wrote them.
func (t Text) Bytes() []byte {
	return t.raw
}

// Valid reports whether the bytes decoded cleanly.
func (t Text) Valid() bool {
	return t.valid
}

// Len returns the number of raw bytes.
func (t Text) Len() int {
	return len(t.raw)
}

// Trim returns the text without one trailing "\n" or "\r\n".
func (t Text) Trim() string {
	s := t.String()
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}

// Decoder turns raw output bytes into Text.
type Decoder struct {
	name string
	enc  encoding.Encoding // nil means UTF-8
}

// NewDecoder returns a decoder for the named encoding. Names are WHATWG
// labels ("utf-8", "latin1", "shift_jis", ...); "" means UTF-8.
func NewDecoder(name string) (*Decoder, error) {
	if name == "" {
		return &Decoder{name: "utf-8"}, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	if enc == unicode.UTF8 {
		return &Decoder{name: canonical}, nil
	}
	return &Decoder{name: canonical, enc: enc}, nil
}

// UTF8 is the default decoder.
var UTF8 = &Decoder{name: "utf-8"}

// Name returns the canonical encoding name.
func (d *Decoder) Name() string {
	return d.name
}

// Decode decodes b. On failure the Text carries the raw bytes and Valid
// reports false; Decode never returns an error.
func (d *Decoder) Decode(b []byte) Text {
	if d == nil || d.enc == nil {
		if utf8.Valid(b) {
			return Text{raw: b, decoded: string(b), valid: true}
		}
		return Text{raw: b}
	}

	out, err := d.enc.NewDecoder().Bytes(b)
	// x/text decoders substitute U+FFFD instead of failing
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return Text{raw: b}
	}
	return Text{raw: b, decoded: string(out), valid: true}
}
