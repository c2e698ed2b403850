package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	compressionNone = "none"
	compressionZstd = "zstd"
	compressionLZ4  = "lz4"
)

func compressionFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return compressionZstd
	case strings.HasSuffix(path, ".lz4"):
		return compressionLZ4
	default:
		return compressionNone
	}
}

// chainCloser closes an encoder and then the file under it.
type chainCloser struct {
	io.Writer
	closers []io.Closer
}

func (c *chainCloser) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func compressWriter(path string, file io.WriteCloser) (io.WriteCloser, error) {
	switch compressionFor(path) {
	case compressionZstd:
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return &chainCloser{Writer: enc, closers: []io.Closer{enc, file}}, nil
	case compressionLZ4:
		zw := lz4.NewWriter(file)
		return &chainCloser{Writer: zw, closers: []io.Closer{zw, file}}, nil
	default:
		return file, nil
	}
}

type chainReadCloser struct {
	io.Reader
	close func() error
}

func (c *chainReadCloser) Close() error { return c.close() }

func decompressReader(path string, file io.ReadCloser) (io.ReadCloser, error) {
	switch compressionFor(path) {
	case compressionZstd:
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return &chainReadCloser{Reader: dec, close: func() error {
			dec.Close()
			return file.Close()
		}}, nil
	case compressionLZ4:
		return &chainReadCloser{Reader: lz4.NewReader(file), close: file.Close}, nil
	default:
		return file, nil
	}
}
