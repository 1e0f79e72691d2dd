package mycache

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// ByteView holds an immutable view of bytes, backed internally by either
// a []byte or a string; callers never observe which. A ByteView is safe
// to copy and to retain past the call that produced it.
type ByteView struct {
	b []byte
	s string
}

// Len returns the length of the view.
func (v ByteView) Len() int {
	if v.b != nil {
		return len(v.b)
	}
	return len(v.s)
}

// ByteSlice returns a copy of the data as a []byte.
func (v ByteView) ByteSlice() []byte {
	if v.b != nil {
		return cloneBytes(v.b)
	}
	return []byte(v.s)
}

// String returns the data as a string.
func (v ByteView) String() string {
	if v.b != nil {
		return string(v.b)
	}
	return v.s
}

// At returns the byte at index i.
func (v ByteView) At(i int) byte {
	if v.b != nil {
		return v.b[i]
	}
	return v.s[i]
}

// Slice returns the sub-view v[from:to].
func (v ByteView) Slice(from, to int) ByteView {
	if v.b != nil {
		return ByteView{b: v.b[from:to]}
	}
	return ByteView{s: v.s[from:to]}
}

// SliceFrom returns the sub-view v[from:].
func (v ByteView) SliceFrom(from int) ByteView {
	if v.b != nil {
		return ByteView{b: v.b[from:]}
	}
	return ByteView{s: v.s[from:]}
}

// Copy copies the view's bytes into dest, returning the count copied.
func (v ByteView) Copy(dest []byte) int {
	if v.b != nil {
		return copy(dest, v.b)
	}
	return copy(dest, v.s)
}

// Equal reports whether v and other hold identical bytes.
func (v ByteView) Equal(other ByteView) bool {
	if other.b == nil {
		return v.EqualString(other.s)
	}
	return v.EqualBytes(other.b)
}

// EqualString reports whether v holds exactly s.
func (v ByteView) EqualString(s string) bool {
	if v.b == nil {
		return v.s == s
	}
	return len(s) == len(v.b) && string(v.b) == s
}

// EqualBytes reports whether v holds exactly b.
func (v ByteView) EqualBytes(b []byte) bool {
	if v.b != nil {
		return bytes.Equal(v.b, b)
	}
	return len(b) == len(v.s) && string(b) == v.s
}

// Reader returns an io.ReadSeeker over the view's bytes.
func (v ByteView) Reader() io.ReadSeeker {
	if v.b != nil {
		return bytes.NewReader(v.b)
	}
	return strings.NewReader(v.s)
}

// ReadAt implements io.ReaderAt.
func (v ByteView) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("mycache: invalid offset")
	}
	if off >= int64(v.Len()) {
		return 0, io.EOF
	}
	n = v.SliceFrom(int(off)).Copy(p)
	if n < len(p) {
		err = io.EOF
	}
	return
}

// WriteTo implements io.WriterTo.
func (v ByteView) WriteTo(w io.Writer) (n int64, err error) {
	var m int
	if v.b != nil {
		m, err = w.Write(v.b)
	} else {
		m, err = io.WriteString(w, v.s)
	}
	if err == nil && m < v.Len() {
		err = io.ErrShortWrite
	}
	return int64(m), err
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
