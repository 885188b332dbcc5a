// Package compress detects and unwraps compressed guide payloads by their
// magic bytes.
package compress

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"

	"github.com/snapetech/epgnorm/internal/epgerr"
)

// Format names a payload encoding.
type Format string

const (
	Plain  Format = "plain"
	Gzip   Format = "gzip"
	Bzip2  Format = "bzip2"
	XZ     Format = "xz"
	Zip    Format = "zip"
	Brotli Format = "br"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zipMagic   = []byte("PK\x03\x04")
)

// Detect inspects the leading bytes. Brotli has no magic and is never detected.
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, xzMagic):
		return XZ
	case bytes.HasPrefix(header, bzip2Magic):
		return Bzip2
	case bytes.HasPrefix(header, zipMagic):
		return Zip
	}
	return Plain
}

// Decode unwraps data according to its magic bytes. Plain input is returned
// as is. maxBytes caps the decoded size (0 = no cap). Corrupt streams fail
// with epgerr.ErrDecompression.
func Decode(data []byte, maxBytes int64) ([]byte, Format, error) {
	f := Detect(data)
	if f == Plain {
		return data, Plain, nil
	}
	out, err := DecodeAs(f, data, maxBytes)
	return out, f, err
}

// DecodeAs unwraps data with an explicit format, e.g. from Content-Encoding.
func DecodeAs(f Format, data []byte, maxBytes int64) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch f {
	case Plain:
		return data, nil
	case Gzip:
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err == nil {
			defer gz.Close()
			r = gz
		}
	case Bzip2:
		r = bzip2.NewReader(bytes.NewReader(data))
	case XZ:
		r, err = xz.NewReader(bytes.NewReader(data))
	case Brotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case Zip:
		r, err = firstXMLEntry(data)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", epgerr.ErrDecompression, f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", epgerr.ErrDecompression, f, err)
	}
	out, err := readAllLimit(r, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", epgerr.ErrDecompression, f, err)
	}
	return out, nil
}

// firstXMLEntry opens the first .xml file of a zip archive, or the first file
// when none has that extension.
func firstXMLEntry(data []byte) (io.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var pick *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), ".xml") {
			pick = f
			break
		}
		if pick == nil {
			pick = f
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("archive has no files")
	}
	rc, err := pick.Open()
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

func readAllLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("decoded payload exceeds %d bytes", maxBytes)
	}
	return b, nil
}
