package chat

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// wordSmoother re-chunks text deltas into whole words followed by their
// trailing whitespace and paces them by delay.
type wordSmoother struct {
	delay time.Duration
	emit  func(string)
	buf   string
}

func (s *wordSmoother) push(ctx context.Context, text string) {
	s.buf += text
	for {
		end := wordEnd(s.buf)
		if end < 0 {
			return
		}
		s.emit(s.buf[:end])
		s.buf = s.buf[end:]
		if s.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
	}
}

func (s *wordSmoother) flush() {
	if s.buf != "" {
		s.emit(s.buf)
		s.buf = ""
	}
}

// wordEnd returns the end of the first word plus its whitespace run, or -1
// when the buffer does not yet hold a complete one.
func wordEnd(s string) int {
	start := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	if start < 0 {
		return -1
	}
	space := strings.IndexFunc(s[start:], unicode.IsSpace)
	if space < 0 {
		return -1
	}
	i := start + space
	rest := strings.IndexFunc(s[i:], func(r rune) bool { return !unicode.IsSpace(r) })
	if rest < 0 {
		// trailing whitespace may still grow
		return -1
	}
	return i + rest
}
