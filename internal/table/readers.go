package table

// readers.go wraps upload streams before they reach a decoder:
//
//   - sizeLimitReader fails once more than limit bytes have been read
//   - skipBOM drops a leading UTF-8 byte order mark (Excel CSV exports)
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//
// wrapCSV applies all three in the order the CSV decoder needs.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// sizeLimitReader counts bytes and errors with ErrFileTooLarge past limit.
// A non-positive limit disables the check.
type sizeLimitReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func newSizeLimitReader(r io.Reader, limit int64) *sizeLimitReader {
	return &sizeLimitReader{r: r, limit: limit}
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.limit > 0 && l.read > l.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.limit)
	}
	return n, err
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = br.Discard(len(byteOrderMark))
	}
	return br
}

// utf8Sanitizer rewrites invalid UTF-8 in place, one '?' per bad byte, so the
// output never grows. A multi-byte rune split across two reads is carried
// over to the next call.
type utf8Sanitizer struct {
	r     io.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.carry)
	s.carry = append(s.carry[:0], s.carry[n:]...)

	var err error
	if n < len(p) {
		var m int
		m, err = s.r.Read(p[n:])
		n += m
	}
	if n == 0 {
		return 0, err
	}

	buf := p[:n]
	if isASCII(buf) {
		return n, err
	}

	w := 0
	for i := 0; i < len(buf); {
		if buf[i] < utf8.RuneSelf {
			buf[w] = buf[i]
			w++
			i++
			continue
		}
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			if err == nil && !utf8.FullRune(buf[i:]) {
				s.carry = append(append([]byte(nil), buf[i:]...), s.carry...)
				break
			}
			buf[w] = '?'
			w++
			i++
			continue
		}
		copy(buf[w:], buf[i:i+size])
		w += size
		i += size
	}
	return w, err
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func wrapCSV(r io.Reader) io.Reader {
	return newUTF8Sanitizer(skipBOM(r))
}
