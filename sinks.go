package mycache

import "errors"

// Sink receives the bytes produced by an origin loader or a peer
// response and exposes a frozen ByteView once all data
// has been written.
type Sink interface {
	// SetString sets the value to the contents of s.
	SetString(s string) error

	// SetBytes sets the value to the contents of v.
	SetBytes(v []byte) error

	// view returns a frozen view of whatever was written.
	view() (ByteView, error)
}

// viewSetter is an optional fast path: sinks that can accept an
// already-built ByteView directly (skipping a redundant copy) implement
// it; setSinkView uses it when available.
type viewSetter interface {
	setView(v ByteView) error
}

// stringSink fills a string pointer.
type stringSink struct {
	sp *string
	v  ByteView
}

// StringSink returns a Sink that fills sp.
func StringSink(sp *string) Sink {
	return &stringSink{sp: sp}
}

func (s *stringSink) view() (ByteView, error) { return s.v, nil }

func (s *stringSink) SetString(v string) error {
	s.v = ByteView{s: v}
	*s.sp = v
	return nil
}

func (s *stringSink) SetBytes(v []byte) error {
	return s.SetString(string(v))
}

// byteViewSink fills a ByteView.
type byteViewSink struct {
	dst *ByteView
}

// ByteViewSink returns a Sink that fills dst.
func ByteViewSink(dst *ByteView) Sink {
	if dst == nil {
		panic("mycache: nil ByteViewSink destination")
	}
	return &byteViewSink{dst: dst}
}

func (s *byteViewSink) setView(v ByteView) error {
	*s.dst = v
	return nil
}

func (s *byteViewSink) view() (ByteView, error) { return *s.dst, nil }

func (s *byteViewSink) SetBytes(b []byte) error {
	*s.dst = ByteView{b: cloneBytes(b)}
	return nil
}

func (s *byteViewSink) SetString(v string) error {
	*s.dst = ByteView{s: v}
	return nil
}

// allocBytesSink allocates a fresh []byte to hold the received value.
type allocBytesSink struct {
	dst *[]byte
	v   ByteView
}

// AllocatingByteSliceSink returns a Sink that allocates *dst to hold
// whatever is written to it.
func AllocatingByteSliceSink(dst *[]byte) Sink {
	return &allocBytesSink{dst: dst}
}

func (s *allocBytesSink) view() (ByteView, error) { return s.v, nil }

func (s *allocBytesSink) setView(v ByteView) error {
	if v.b != nil {
		*s.dst = cloneBytes(v.b)
	} else {
		*s.dst = []byte(v.s)
	}
	s.v = v
	return nil
}

func (s *allocBytesSink) SetBytes(b []byte) error {
	if s.dst == nil {
		return errors.New("mycache: nil AllocatingByteSliceSink destination")
	}
	owned := cloneBytes(b)
	*s.dst = owned
	s.v = ByteView{b: owned}
	return nil
}

func (s *allocBytesSink) SetString(v string) error {
	if s.dst == nil {
		return errors.New("mycache: nil AllocatingByteSliceSink destination")
	}
	*s.dst = []byte(v)
	s.v = ByteView{s: v}
	return nil
}

// TruncatingByteSliceSink returns a Sink that writes at most len(*dst)
// bytes into *dst, truncating silently like io.Writer over a fixed
// buffer.
func TruncatingByteSliceSink(dst *[]byte) Sink {
	return &truncBytesSink{dst: dst}
}

type truncBytesSink struct {
	dst *[]byte
	v   ByteView
}

func (s *truncBytesSink) view() (ByteView, error) { return s.v, nil }

func (s *truncBytesSink) SetBytes(b []byte) error {
	return s.setOwned(cloneBytes(b))
}

func (s *truncBytesSink) setOwned(b []byte) error {
	if s.dst == nil {
		return errors.New("mycache: nil TruncatingByteSliceSink destination")
	}
	n := copy(*s.dst, b)
	if n < len(*s.dst) {
		*s.dst = (*s.dst)[:n]
	}
	s.v = ByteView{b: b}
	return nil
}

func (s *truncBytesSink) SetString(v string) error {
	if s.dst == nil {
		return errors.New("mycache: nil TruncatingByteSliceSink destination")
	}
	n := copy(*s.dst, v)
	if n < len(*s.dst) {
		*s.dst = (*s.dst)[:n]
	}
	s.v = ByteView{s: v}
	return nil
}

// setSinkView copies v into s, using the viewSetter fast path when s
// supports it.
func setSinkView(s Sink, v ByteView) error {
	if vs, ok := s.(viewSetter); ok {
		return vs.setView(v)
	}
	if v.b != nil {
		return s.SetBytes(v.b)
	}
	return s.SetString(v.s)
}
