package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/Guliveer/sysmon/internal/models"
)

// CSVWriter writes one row per snapshot. The header is taken from the
// first snapshot; later rows follow it, filling missing fields with the
// unavailable marker and dropping fields the header does not name.
type CSVWriter struct {
	writer    *csv.Writer
	header    []string
	headerSet bool
}

// NewCSVWriter returns a CSV sink writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// Header returns the header row, nil before the first write.
func (w *CSVWriter) Header() []string { return w.header }

// Write appends a row for snap and flushes it.
func (w *CSVWriter) Write(snap *models.Snapshot) error {
	fields := snap.Fields()
	if !w.headerSet {
		w.header = make([]string, len(fields))
		for i, f := range fields {
			w.header[i] = f.Name
		}
		if err := w.writer.Write(w.header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		w.headerSet = true
	}

	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Name] = models.FormatValue(f.Value)
	}
	row := make([]string, len(w.header))
	for i, key := range w.header {
		if v, ok := values[key]; ok {
			row[i] = v
		} else {
			row[i] = models.Unavailable
		}
	}

	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows. It does not close the underlying writer.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	return w.writer.Error()
}

// ReadCSV parses a file written by CSVWriter. It returns the header and one
// record per row with values typed as FormatValue produced them.
func ReadCSV(r io.Reader) ([]string, []Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return header, records, err
		}
		record := make(Record, len(header))
		for i, val := range row {
			if i >= len(header) {
				break
			}
			v, err := models.ParseValue(val)
			if err != nil {
				return header, records, fmt.Errorf("line %d, field %s: %w", line, header[i], err)
			}
			record[header[i]] = v
		}
		records = append(records, record)
	}
	return header, records, nil
}
