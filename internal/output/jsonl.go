package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Guliveer/sysmon/internal/models"
)

const maxLineSize = 10 * 1024 * 1024

// JSONLWriter writes one JSON object per snapshot. Unavailable values are
// null.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter returns a JSON lines sink writing to w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

func (w *JSONLWriter) Write(snap *models.Snapshot) error {
	if err := w.enc.Encode(snap.FieldMap()); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Close() error { return nil }

// ReadJSONL parses a stream written by JSONLWriter. Numbers decode as
// float64.
func ReadJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []Record
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			return records, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scanner error: %w", err)
	}
	return records, nil
}
