package orchestration

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns a UTF-8 byte stream into text chunk by chunk. A
// multi-byte character split across chunks is held back until its remaining
// bytes arrive; malformed bytes become U+FFFD.
type textDecoder struct {
	transformer transform.Transformer
	pending     []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{transformer: unicode.UTF8.NewDecoder()}
}

func (d *textDecoder) Decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	return d.transform(src, false)
}

// Flush decodes whatever is still held back, at end of stream.
func (d *textDecoder) Flush() string {
	src := d.pending
	d.pending = nil
	text := d.transform(src, true)
	d.transformer.Reset()
	return text
}

func (d *textDecoder) transform(src []byte, atEOF bool) string {
	if len(src) == 0 {
		return ""
	}

	var text strings.Builder
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for len(src) > 0 {
		nDst, nSrc, err := d.transformer.Transform(dst, src, atEOF)
		text.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return text.String()
		case errors.Is(err, transform.ErrShortDst):
			continue
		default:
			logger.Warn("unexpected decode error, substituting replacement character", "error", err)
			text.WriteRune(utf8.RuneError)
			src = src[1:]
		}

		if nSrc == 0 && nDst == 0 && err == nil {
			break
		}
	}
	return text.String()
}
