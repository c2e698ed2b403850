package output

import (
	"bufio"
	"io"

	"github.com/Guliveer/sysmon/internal/models"
)

// KVWriter prints every snapshot as a brace-delimited block of name:value
// lines, the console format of the sampling CLI.
type KVWriter struct {
	w *bufio.Writer
}

// NewKVWriter returns a key/value sink writing to w.
func NewKVWriter(w io.Writer) *KVWriter {
	return &KVWriter{w: bufio.NewWriter(w)}
}

func (k *KVWriter) Write(snap *models.Snapshot) error {
	k.w.WriteString("{\n")
	for _, f := range snap.Fields() {
		k.w.WriteString(f.Name)
		k.w.WriteByte(':')
		k.w.WriteString(models.FormatValue(f.Value))
		k.w.WriteByte('\n')
	}
	k.w.WriteString("}\n")
	// bufio.Writer keeps the first write error and Flush returns it.
	return k.w.Flush()
}

func (k *KVWriter) Close() error { return k.w.Flush() }
