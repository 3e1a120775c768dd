package binlog

import "io"

// Event pairs a decoded common header with its type-specific body. Body's
// dynamic type is one of the *Event types declared in this package
// (FormatDescriptionEvent, QueryEvent, RotateEvent, TableMapEvent,
// RowsEvent, IntVarEvent, RandEvent, XIDEvent, UserVarEvent, RowsQueryEvent,
// IncidentEvent, OpaqueEvent) or the empty marker types for bodyless
// events.
type Event struct {
	Header EventHeader
	Body   interface{}
}

// StopEvent, HeartbeatEvent: bodyless event markers.
type StopEvent struct{}
type HeartbeatEvent struct{}

// TableMapEvent is the body of a table_map_event: the definition it
// declares is also installed into the Decoder's table cache as a side
// effect of NextEvent.
type TableMapEvent struct {
	TableID    uint64
	Flags      map[string]bool
	Definition *TableDefinition
}

// RowsEvent is the body of a write_rows/update_rows/delete_rows event. Row
// images themselves are not eagerly decoded into this struct; call
// Decoder.NextRow repeatedly to stream them, since a single event can carry
// an unbounded number of rows.
type RowsEvent struct {
	EventType EventType
	Table     *TableDefinition
	Flags     map[string]bool
}

// Decoder turns a stream of bytes, fronted by a ByteReader and a
// FieldParser, into a sequence of Events. A Decoder owns one TableCache and
// is not safe for concurrent use: run one Decoder per binlog stream, each
// with its own goroutine if concurrency across streams is wanted.
type Decoder struct {
	src   ByteReader
	fp    FieldParser
	cache *TableCache

	// maxQueryLength caps the Query field of a decoded QueryEvent; 0 means
	// unbounded. The full query_length bytes are always consumed from the
	// reader regardless of this cap.
	maxQueryLength int

	// rows holds the in-progress rows event state between NextRow calls;
	// nil whenever the most recently returned Event was not a rows event.
	rows        *rowsEventState
	rowsBodyEnd uint64
}

// Option configures a Decoder at construction time.
type Option func(*Decoder)

// WithMaxQueryLength caps the number of bytes retained in a query_event's
// Query field. The reader still consumes the statement's full declared
// length; only the returned string is truncated.
func WithMaxQueryLength(n int) Option {
	return func(d *Decoder) { d.maxQueryLength = n }
}

// NewDecoder returns a Decoder reading from src via fp, with an empty table
// cache.
func NewDecoder(src ByteReader, fp FieldParser, opts ...Option) *Decoder {
	d := &Decoder{src: src, fp: fp, cache: NewTableCache()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TableCache returns the decoder's table-definition cache, primarily so
// callers can inspect it (e.g. for diagnostics) or call Reset explicitly
// around a manual seek.
func (d *Decoder) TableCache() *TableCache {
	return d.cache
}

// NextEvent decodes the next event's header and body. For rows events, the
// returned RowsEvent does not itself contain row images; call NextRow to
// stream them. Any row images left undrained when NextEvent is called again
// are skipped.
func (d *Decoder) NextEvent() (Event, error) {
	if d.rows != nil {
		if rem := d.src.Remaining(d.rowsBodyEnd); rem > 0 {
			if _, err := d.src.Read(int(rem)); err != nil {
				return Event{}, decodeError(ErrShortRead, "draining undrained rows event")
			}
		}
		d.rows = nil
	}

	h, err := decodeHeader(d.src, d.fp)
	if err != nil {
		return Event{}, err
	}

	var body interface{}

	switch {
	case h.EventType == FormatDescriptionEventType:
		body, err = decodeFormatDescription(d.src, d.fp, h)

	case h.EventType == QueryEventType:
		body, err = decodeQuery(d.src, d.fp, h, d.maxQueryLength)

	case h.EventType == RotateEventType:
		var re RotateEvent
		re, err = decodeRotate(d.src, d.fp, h)
		if err == nil {
			d.cache.Reset()
		}
		body = re

	case h.EventType == TableMapEventType:
		var def *TableDefinition
		var flags map[string]bool
		def, flags, err = decodeTableMap(d.src, d.fp, h)
		if err == nil {
			d.cache.install(def)
			body = TableMapEvent{TableID: def.TableID, Flags: flags, Definition: def}
		}

	case h.EventType.IsRows():
		var st *rowsEventState
		var flags map[string]bool
		st, flags, err = decodeRowsPrefix(d.src, d.fp, h, d.cache)
		if err == nil {
			d.rows = st
			d.rowsBodyEnd = h.bodyEnd
			body = RowsEvent{EventType: h.EventType, Table: st.table, Flags: flags}
		}

	case h.EventType == IntvarEventType:
		body, err = decodeIntVar(d.fp)

	case h.EventType == RandEventType:
		body, err = decodeRand(d.fp)

	case h.EventType == XIDEventType:
		body, err = decodeXID(d.fp)

	case h.EventType == UserVarEventType:
		body, err = decodeUserVar(d.src, d.fp, h)

	case h.EventType == RowsQueryEventType:
		body, err = decodeRowsQuery(d.src, d.fp, h)

	case h.EventType == IncidentEventType:
		body, err = decodeIncident(d.src, d.fp, h)

	case h.EventType == StopEventType:
		body = StopEvent{}

	case h.EventType == HeartbeatEventType:
		body = HeartbeatEvent{}

	default:
		body, err = decodeOpaque(d.src, d.fp, h)
	}

	if err != nil {
		return Event{}, err
	}
	return Event{Header: h, Body: body}, nil
}

// NextRow decodes the next row's image(s) from the rows event most
// recently returned by NextEvent. It returns exactly one []RowCell slice
// for write_rows and delete_rows events, and two (before, after) for
// update_rows events. Rows not consumed before the next NextEvent call are
// skipped.
//
// NextRow returns io.EOF, with a nil slice, once the event body is
// exhausted and there is no partial row left to decode.
func (d *Decoder) NextRow() ([][]RowCell, error) {
	if d.rows == nil {
		return nil, io.EOF
	}
	if d.src.Remaining(d.rowsBodyEnd) == 0 {
		d.rows = nil
		return nil, io.EOF
	}

	st := d.rows
	sections := make([][]RowCell, 0, 2)

	before, err := decodeRowImageSection(d.src, d.fp, st.table, st.columnsUsed[0])
	if err != nil {
		return nil, err
	}
	sections = append(sections, before)

	if st.eventType.IsUpdateRows() {
		after, err := decodeRowImageSection(d.src, d.fp, st.table, st.columnsUsed[1])
		if err != nil {
			return nil, err
		}
		sections = append(sections, after)
	}

	// A row image must never run past the event body, even when the stream
	// itself has more bytes (they belong to the next event).
	if d.src.Position() > d.rowsBodyEnd {
		return nil, decodeError(ErrOverReadRowImage,
			"rows: row image ran %d bytes past body end", d.src.Position()-d.rowsBodyEnd)
	}

	return sections, nil
}
