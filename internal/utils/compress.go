package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the container format of a byte stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectCompression inspects the leading magic bytes of a stream.
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// NewDecompressingReader wraps r and transparently decodes gzip or zstd
// content. Plain content is passed through unchanged.
func NewDecompressingReader(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	switch c := DetectCompression(head); c {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, c, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, c, nil
	case CompressionZstd:
		d, err := zstd.NewReader(br)
		if err != nil {
			return nil, c, fmt.Errorf("opening zstd stream: %w", err)
		}
		return d.IOReadCloser(), c, nil
	default:
		return io.NopCloser(br), c, nil
	}
}

// ReadAllDecompressed reads r to the end, decoding gzip or zstd content.
func ReadAllDecompressed(r io.Reader) ([]byte, error) {
	rc, _, err := NewDecompressingReader(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return data, nil
}
