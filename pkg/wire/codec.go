package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Codec errors.
var (
	// ErrEmptyBlock indicates a block with no lines at all.
	ErrEmptyBlock = errors.New("wire: empty block")
)

// DecodeError describes a malformed protocol block. Callers drop the block
// and continue reading; a decode error is never fatal to the stream.
type DecodeError struct {
	// Line is the offending line.
	Line string
	// Reason describes what was wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: malformed block: %s: %q", e.Reason, e.Line)
}

// ParseBlock parses the lines of one protocol block into a Message and
// classifies it. Lines are the block content with line terminators and the
// trailing empty line already stripped by the frame reader.
//
// A line without a key/value separator makes the whole block malformed: the
// protocol has no continuation-line syntax, so an unparseable line means
// the block cannot be trusted.
func ParseBlock(lines []string) (*Message, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyBlock
	}

	headers := make([]Header, 0, len(lines))
	index := make(map[string]string, len(lines))

	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &DecodeError{Line: line, Reason: "missing separator"}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, &DecodeError{Line: line, Reason: "empty key"}
		}
		value = strings.TrimSpace(value)

		headers = append(headers, Header{Key: key, Value: value})
		lower := strings.ToLower(key)
		if _, seen := index[lower]; !seen {
			index[lower] = value
		}
	}

	return &Message{
		kind:    classify(index),
		headers: headers,
		index:   index,
	}, nil
}

// classify applies the block classification rule: an Event key makes an
// event, a Response key makes a response, anything else is unknown.
func classify(index map[string]string) Kind {
	if _, ok := index[strings.ToLower(KeyEvent)]; ok {
		return KindEvent
	}
	if _, ok := index[strings.ToLower(KeyResponse)]; ok {
		return KindResponse
	}
	return KindUnknown
}
