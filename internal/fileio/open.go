// Package fileio opens plain or compressed text inputs.
package fileio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/xi2/xz"
)

// DataType identifies how an input stream is encoded.
type DataType byte

const (
	DataTypePlain DataType = iota
	DataTypeGzip
	DataTypeXZ
	DataTypeZip
)

var signatures = []struct {
	dt  DataType
	sig []byte
}{
	{DataTypeGzip, []byte{0x1f, 0x8b}},
	{DataTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{DataTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
}

// Detect inspects the leading bytes of a stream.
func Detect(head []byte) DataType {
	for _, s := range signatures {
		if bytes.HasPrefix(head, s.sig) {
			return s.dt
		}
	}
	return DataTypePlain
}

// Open opens path for reading, transparently decompressing gzip and xz data.
// Use "-" for stdin. Zip archives are rejected; unwrap them with the archive
// package first.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return NewReader(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	rc, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fileReadCloser{ReadCloser: rc, file: f}, nil
}

// NewReader wraps r with the decompressor matching its content. Closing the
// result does not close r.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 4*1024*1024)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read header: %w", err)
	}

	switch Detect(head) {
	case DataTypeGzip:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, nil
	case DataTypeXZ:
		xr, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case DataTypeZip:
		return nil, fmt.Errorf("zip archive must be unzipped before reading")
	}
	return io.NopCloser(br), nil
}

type fileReadCloser struct {
	io.ReadCloser
	file *os.File
}

func (f *fileReadCloser) Close() error {
	err := f.ReadCloser.Close()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// BaseName returns the file name of path without compression suffixes.
func BaseName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".xz"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
