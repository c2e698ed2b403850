package output

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/Guliveer/sysmon/internal/models"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys and smallest integer encoding, so equal snapshots encode to equal
// bytes.
var encMode cbor.EncMode

// decMode decodes maps into map[string]any.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("output: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("output: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORWriter writes one CBOR map per snapshot as a sequence (RFC 8742).
type CBORWriter struct {
	enc *cbor.Encoder
}

// NewCBORWriter returns a CBOR sequence sink writing to w.
func NewCBORWriter(w io.Writer) *CBORWriter {
	return &CBORWriter{enc: encMode.NewEncoder(w)}
}

func (w *CBORWriter) Write(snap *models.Snapshot) error {
	if err := w.enc.Encode(snap.FieldMap()); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

func (w *CBORWriter) Close() error { return nil }

// ReadCBOR decodes a CBOR sequence written by CBORWriter.
func ReadCBOR(r io.Reader) ([]Record, error) {
	dec := decMode.NewDecoder(r)
	var records []Record
	for {
		var record Record
		err := dec.Decode(&record)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}
