package omeconvert

import "io"

// ReaderAtCloser is what image readers need from an input: random access for
// IFD walking plus a way to release the handle.
type ReaderAtCloser interface {
	io.Reader
	io.ReaderAt
	io.Closer
}
