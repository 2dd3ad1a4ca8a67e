package terminal

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns raw terminal output into UTF-8 text one chunk at a time.
// Multi-byte sequences split across reads are held back until complete and
// invalid bytes become U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

func (d *Decoder) Decode(chunk []byte) string {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(append(src, d.pending...), chunk...)
	d.pending = d.pending[:0]
	return d.transform(src, false)
}

// Flush returns any held-back bytes, replacing an incomplete sequence.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	src := d.pending
	d.pending = nil
	return d.transform(src, true)
}

func (d *Decoder) transform(src []byte, atEOF bool) string {
	var out strings.Builder
	buf := make([]byte, 3*len(src)+utf8.UTFMax)
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(buf, src, atEOF)
		out.Write(buf[:nDst])
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortSrc) {
			d.pending = append(d.pending, src...)
			break
		}
		if err != nil && !errors.Is(err, transform.ErrShortDst) {
			break
		}
		if nDst == 0 && nSrc == 0 {
			break
		}
	}
	return out.String()
}
