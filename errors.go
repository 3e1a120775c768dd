package binlog

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is against these; NextEvent wraps one of
// them with fmt.Errorf("binlog: ...: %w", ...) context for every failure
// except a clean end of stream at an event boundary, which it returns as a
// bare io.EOF.
var (
	// ErrShortRead means the underlying byte reader could not supply the
	// requested number of bytes.
	ErrShortRead = errors.New("short read")

	// ErrOverReadStatus means a query_event's status block was read past
	// its declared status_length.
	ErrOverReadStatus = errors.New("over-read of query status block")

	// ErrOverReadRowImage means a rows event's row images were read past
	// the event body end.
	ErrOverReadRowImage = errors.New("over-read of row image")

	// ErrUnknownTableID means a rows event referenced a table_id absent
	// from the table-map cache.
	ErrUnknownTableID = errors.New("unknown table id")

	// ErrMalformedHeader means the declared event_length is less than the
	// 19-byte common header.
	ErrMalformedHeader = errors.New("malformed event header")

	// ErrUnsupportedEvent names a refusal to decode an event type at all.
	// The Decoder in this package never returns it: event types it does not
	// interpret are returned as an OpaqueEvent body.
	ErrUnsupportedEvent = errors.New("unsupported event")

	// ErrMalformedTableMap means a table_map_event's declared
	// metadata_length did not match the bytes consumed decoding per-column
	// metadata.
	ErrMalformedTableMap = errors.New("malformed table map event")
)

// decodeError wraps one of the sentinels above with positional context.
func decodeError(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("binlog: %s: %w", fmt.Sprintf(format, args...), sentinel)
}
