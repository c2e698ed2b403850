// Package output writes snapshots to files or streams. Every sink consumes
// the ordered field list of a snapshot; the format is picked by name or by
// file extension, and a trailing .zst or .lz4 suffix compresses the stream.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
)

// Format names.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
	FormatCBOR  = "cbor"
	FormatKV    = "kv"
)

// Formats lists every supported format name.
var Formats = []string{FormatCSV, FormatJSONL, FormatCBOR, FormatKV}

// Record is one snapshot keyed by field name, as read back from a file.
type Record = map[string]any

// Sink consumes snapshots.
type Sink interface {
	Write(snap *models.Snapshot) error
	Close() error
}

// IsFormat reports whether name is a supported format.
func IsFormat(name string) bool {
	for _, f := range Formats {
		if f == name {
			return true
		}
	}
	return false
}

// FormatForPath infers the format from the extension of path, ignoring a
// compression suffix. Unknown extensions default to CSV.
func FormatForPath(path string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(path, ".zst"), ".lz4")
	switch strings.ToLower(filepath.Ext(base)) {
	case ".jsonl", ".json":
		return FormatJSONL
	case ".cbor":
		return FormatCBOR
	case ".txt", ".kv":
		return FormatKV
	default:
		return FormatCSV
	}
}

// NewSink returns a sink of the given format writing to w. Closing the sink
// does not close w.
func NewSink(w io.Writer, format string) (Sink, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(w), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatCBOR:
		return NewCBORWriter(w), nil
	case FormatKV:
		return NewKVWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// FileSink is a sink bound to a file, possibly through a compressor.
type FileSink struct {
	Sink
	path   string
	stream io.WriteCloser
	logger *zap.Logger
}

// Create truncates path and returns a sink writing format to it. An empty
// format is inferred from the path.
func Create(path, format string, logger *zap.Logger) (*FileSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if format == "" {
		format = FormatForPath(path)
	}
	if !IsFormat(format) {
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	stream, err := compressWriter(path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	sink, err := NewSink(stream, format)
	if err != nil {
		stream.Close()
		return nil, err
	}

	logger.Info("Writing snapshots",
		zap.String("path", path),
		zap.String("format", format),
		zap.String("compression", compressionFor(path)))
	return &FileSink{Sink: sink, path: path, stream: stream, logger: logger}, nil
}

// Path returns the output file path.
func (f *FileSink) Path() string { return f.path }

// Close flushes the format writer, then the compressor, then closes the file.
func (f *FileSink) Close() error {
	err := f.Sink.Close()
	if cerr := f.stream.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Open opens a file written by Create, undoing its compression.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	r, err := decompressReader(path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}
