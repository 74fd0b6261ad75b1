// Package tail turns a growing transcript file into paragraphs.
package tail

import (
	"bufio"
	"io"
	"strings"
)

// Splitter cuts text into paragraphs on blank lines. Text after the last
// blank line is held back until more input or Flush.
type Splitter struct {
	buf     strings.Builder
	partial string
}

// Feed adds a chunk and returns the paragraphs it completed.
func (s *Splitter) Feed(chunk string) []string {
	data := s.partial + chunk
	s.partial = ""

	var out []string
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			s.partial = data
			return out
		}
		line := strings.TrimRight(data[:i], "\r")
		data = data[i+1:]
		if strings.TrimSpace(line) == "" {
			if p := s.take(); p != "" {
				out = append(out, p)
			}
			continue
		}
		if s.buf.Len() > 0 {
			s.buf.WriteByte('\n')
		}
		s.buf.WriteString(line)
	}
}

// Flush returns whatever is buffered, including an unterminated last line.
func (s *Splitter) Flush() string {
	if strings.TrimSpace(s.partial) != "" {
		if s.buf.Len() > 0 {
			s.buf.WriteByte('\n')
		}
		s.buf.WriteString(strings.TrimRight(s.partial, "\r"))
	}
	s.partial = ""
	return s.take()
}

// Pending reports whether Flush would return anything.
func (s *Splitter) Pending() bool {
	return s.buf.Len() > 0 || strings.TrimSpace(s.partial) != ""
}

func (s *Splitter) Reset() {
	s.buf.Reset()
	s.partial = ""
}

func (s *Splitter) take() string {
	p := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return p
}

// Split reads r to the end and returns all its paragraphs.
func Split(r io.Reader) ([]string, error) {
	var s Splitter
	var out []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		out = append(out, s.Feed(line)...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if p := s.Flush(); p != "" {
		out = append(out, p)
	}
	return out, nil
}
