package capture

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// captureEncMode is the CBOR encoder mode for capture records.
// Configured for nanosecond-precision timestamps and deterministic encoding.
var captureEncMode cbor.EncMode

// captureDecMode is the CBOR decoder mode for capture records.
var captureDecMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for capture records
	// Uses RFC3339Nano for nanosecond-precision timestamps
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano, // Nanosecond precision
	}
	captureEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	// Configure decoder for capture records
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	captureDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// EncodeRecord encodes a Record to CBOR bytes using integer keys for
// compactness.
func EncodeRecord(record Record) ([]byte, error) {
	return captureEncMode.Marshal(record)
}

// DecodeRecord decodes CBOR bytes into a Record.
func DecodeRecord(data []byte) (Record, error) {
	var record Record
	if err := captureDecMode.Unmarshal(data, &record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// NewEncoder creates a CBOR encoder for capture records that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for capture records that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDecMode.NewDecoder(r)
}
