// Package framer reassembles newline-delimited text lines from a serial byte stream
package framer

import (
	"errors"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultMaxLineLength is the number of characters a line may grow to
	// before it is flushed without a terminator.
	DefaultMaxLineLength = 1024

	// FlushPrefix marks a line that was flushed because it grew too long
	FlushPrefix = "[WARN] Incomplete line flushed: "
)

// LineFramer accumulates decoded text and splits it on '\n'.
// It is not safe for concurrent use.
type LineFramer struct {
	buf     strings.Builder
	decoder *encoding.Decoder
	carry   []byte // undecoded tail of the last chunk
	maxLen  int
}

// Option configures a LineFramer
type Option func(*LineFramer)

// WithEncoding decodes inbound bytes with enc instead of UTF-8
func WithEncoding(enc encoding.Encoding) Option {
	return func(f *LineFramer) {
		if enc != nil {
			f.decoder = enc.NewDecoder()
		}
	}
}

// WithMaxLineLength overrides DefaultMaxLineLength
func WithMaxLineLength(n int) Option {
	return func(f *LineFramer) {
		if n > 0 {
			f.maxLen = n
		}
	}
}

// NewLineFramer creates an empty framer
func NewLineFramer(opts ...Option) *LineFramer {
	f := &LineFramer{
		decoder: unicode.UTF8.NewDecoder(),
		maxLen:  DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Feed appends p to the buffer and returns the lines that are now complete.
// The bytes are buffered immediately; lines are extracted while the sequence
// is ranged over, so a sequence that is never ranged leaves them pending for
// the next call.
func (f *LineFramer) Feed(p []byte) iter.Seq[string] {
	f.buf.WriteString(f.decode(p))

	return func(yield func(string) bool) {
		for {
			pending := f.buf.String()
			idx := strings.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(pending[:idx])
			f.reset(pending[idx+1:])
			if !yield(line) {
				return
			}
		}

		pending := f.buf.String()
		if utf8.RuneCountInString(pending) > f.maxLen {
			f.buf.Reset()
			yield(FlushPrefix + truncate(pending, f.maxLen))
		}
	}
}

// Lines feeds p and collects the resulting lines
func (f *LineFramer) Lines(p []byte) []string {
	var lines []string
	for line := range f.Feed(p) {
		lines = append(lines, line)
	}
	return lines
}

// Pending returns the buffered text that has not been terminated yet
func (f *LineFramer) Pending() string {
	return f.buf.String()
}

// Reset discards buffered text and any partially decoded character
func (f *LineFramer) Reset() {
	f.buf.Reset()
	f.carry = f.carry[:0]
	f.decoder.Reset()
}

func (f *LineFramer) reset(rest string) {
	f.buf.Reset()
	f.buf.WriteString(rest)
}

// decode converts p to UTF-8 text. A multi-byte sequence cut at the end of p
// is kept back and completed by the next call.
func (f *LineFramer) decode(p []byte) string {
	src := append(f.carry, p...)
	f.carry = nil
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for len(src) > 0 {
		nDst, nSrc, err := f.decoder.Transform(dst, src, false)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			if len(src) >= utf8.UTFMax {
				// Not a truncated character; let the decoder replace it
				nDst, nSrc, _ = f.decoder.Transform(dst, src, true)
				out.Write(dst[:nDst])
				src = src[nSrc:]
				continue
			}
			f.carry = append([]byte(nil), src...)
			return out.String()
		default:
			// Decoders replace invalid input; any other error drops the chunk tail
			return out.String()
		}
		if nSrc == 0 {
			break
		}
	}
	return out.String()
}

// truncate returns the first n characters of s
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
