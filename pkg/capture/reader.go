package capture

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter specifies criteria for filtering capture records.
// Empty/nil fields match all records for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Direction filters by traffic direction.
	Direction *Direction

	// Layer filters by capture layer.
	Layer *Layer

	// Category filters by record category.
	Category *Category

	// TimeStart filters records at or after this time.
	TimeStart *time.Time

	// TimeEnd filters records before this time.
	TimeEnd *time.Time

	// Name filters by event or action name (wire layer records).
	Name string
}

// matches returns true if the record matches all filter criteria.
func (f *Filter) matches(record Record) bool {
	if f.ConnectionID != "" && record.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && record.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && record.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && record.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && record.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !record.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Name != "" {
		if record.Message == nil || record.Message.Name != f.Name {
			return false
		}
	}
	return true
}

// Reader reads capture records from a CBOR-encoded file.
// It provides an iterator interface for streaming large files.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader that reads all records from the specified
// capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that reads records matching the filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next record that matches the filter.
// Returns io.EOF when no more records are available.
func (r *Reader) Next() (Record, error) {
	for {
		var record Record
		if err := r.decoder.Decode(&record); err != nil {
			if err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, err
		}

		if r.filter.matches(record) {
			return record, nil
		}
		// Record doesn't match filter, continue to next
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
