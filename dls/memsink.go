package dls

import (
	"errors"
	"io"
)

// MemSink is an in-memory Sink, used by tests and by the simulator CLI
// mode where there's no filesystem to checkpoint to.
type MemSink struct {
	data []byte
	pos  int64
}

// NewMemSink returns an empty MemSink.
func NewMemSink() *MemSink { return &MemSink{} }

func (s *MemSink) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *MemSink) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	n := copy(s.data[s.pos:end], p)
	s.pos = end
	return n, nil
}

func (s *MemSink) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = int64(len(s.data))
	default:
		return 0, errors.New("dls: memsink: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("dls: memsink: negative position")
	}
	s.pos = next
	return s.pos, nil
}

func (s *MemSink) Truncate(size int64) error {
	switch {
	case size < 0:
		return errors.New("dls: memsink: negative size")
	case size >= int64(len(s.data)):
		grown := make([]byte, size)
		copy(grown, s.data)
		s.data = grown
	default:
		s.data = s.data[:size]
	}
	return nil
}

func (s *MemSink) Sync() error { return nil }
