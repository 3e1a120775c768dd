package binlog_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	binlog "github.com/lakeshore-data/binlogdecode"
	"github.com/lakeshore-data/binlogdecode/byteio"
	"github.com/lakeshore-data/binlogdecode/fieldreader"
)

// --- little-endian byte-buffer helpers for hand-built binlog fixtures ---

func u16le(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func u48le(v uint64) []byte {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(v >> (uint(i) * 8))
	}
	return b
}
func u64le(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (uint(i) * 8))
	}
	return b
}

// buildEvent prepends a 19-byte common header to body, with event_length
// set to cover both.
func buildEvent(eventType binlog.EventType, body []byte) []byte {
	length := uint32(binlog.HeaderSize + len(body))
	var h []byte
	h = append(h, u32le(0)...)       // timestamp
	h = append(h, byte(eventType))   // event_type
	h = append(h, u32le(7)...)       // server_id
	h = append(h, u32le(length)...)  // event_length
	h = append(h, u32le(length)...)  // next_position
	h = append(h, u16le(0x01)...)    // flags: binlog_in_use
	return append(h, body...)
}

func newDecoder(t *testing.T, stream []byte) *binlog.Decoder {
	t.Helper()
	r := byteio.NewReader(bytes.NewReader(stream))
	fp := fieldreader.New(r)
	return binlog.NewDecoder(r, fp)
}

func lpstringz(s string) []byte {
	return append([]byte{byte(len(s))}, append([]byte(s), 0)...)
}

func TestDecoder_FormatDescriptionEvent(t *testing.T) {
	var body []byte
	body = append(body, u16le(4)...) // binlog_version
	ver := make([]byte, 50)
	copy(ver, "5.6.10-log")
	body = append(body, ver...)
	body = append(body, u32le(1234)...) // create_timestamp
	body = append(body, 19)             // header_length

	dec := newDecoder(t, buildEvent(binlog.FormatDescriptionEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	fd, ok := ev.Body.(binlog.FormatDescriptionEvent)
	if !ok {
		t.Fatalf("body type = %T, want FormatDescriptionEvent", ev.Body)
	}
	if fd.BinlogVersion != 4 {
		t.Errorf("BinlogVersion = %d, want 4", fd.BinlogVersion)
	}
	if fd.ServerVersion != "5.6.10-log" {
		t.Errorf("ServerVersion = %q, want %q", fd.ServerVersion, "5.6.10-log")
	}
	if fd.CreateTimestamp != 1234 {
		t.Errorf("CreateTimestamp = %d, want 1234", fd.CreateTimestamp)
	}
	if fd.HeaderLength != 19 {
		t.Errorf("HeaderLength = %d, want 19", fd.HeaderLength)
	}
}

// A query_event for BEGIN on db test, with an empty status block.
func TestDecoder_QueryEvent_Begin(t *testing.T) {
	db := "test"
	query := "BEGIN"
	var body []byte
	body = append(body, u32le(42)...)  // thread_id
	body = append(body, u32le(0)...)   // elapsed_time
	body = append(body, byte(len(db))) // db_length
	body = append(body, u16le(0)...)   // error_code
	body = append(body, u16le(0)...)   // status_length (empty)
	body = append(body, append([]byte(db), 0)...)
	body = append(body, []byte(query)...)

	dec := newDecoder(t, buildEvent(binlog.QueryEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	qe, ok := ev.Body.(binlog.QueryEvent)
	if !ok {
		t.Fatalf("body type = %T, want QueryEvent", ev.Body)
	}
	if qe.ThreadID != 42 {
		t.Errorf("ThreadID = %d, want 42", qe.ThreadID)
	}
	if qe.ErrorCode != 0 {
		t.Errorf("ErrorCode = %d, want 0", qe.ErrorCode)
	}
	if qe.Database != "test" {
		t.Errorf("Database = %q, want %q", qe.Database, "test")
	}
	if qe.Query != "BEGIN" {
		t.Errorf("Query = %q, want %q", qe.Query, "BEGIN")
	}
	if len(qe.StatusVars) != 0 {
		t.Errorf("StatusVars = %v, want empty", qe.StatusVars)
	}
}

// Zero-length query text must decode as an empty string, not an error.
func TestDecoder_QueryEvent_EmptyQueryText(t *testing.T) {
	db := "test"
	var body []byte
	body = append(body, u32le(1)...)
	body = append(body, u32le(0)...)
	body = append(body, byte(len(db)))
	body = append(body, u16le(0)...)
	body = append(body, u16le(0)...)
	body = append(body, append([]byte(db), 0)...)
	// no query text bytes follow

	dec := newDecoder(t, buildEvent(binlog.QueryEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	qe := ev.Body.(binlog.QueryEvent)
	if qe.Query != "" {
		t.Errorf("Query = %q, want empty", qe.Query)
	}
}

// status variables: flags2 and charset, exercising the TLV status block.
func TestDecoder_QueryEvent_StatusVars(t *testing.T) {
	var status []byte
	status = append(status, 0x00)              // StatusFlags2
	status = append(status, u32le(1<<26)...)    // no_foreign_key_checks
	status = append(status, 0x04)               // StatusCharset
	status = append(status, u16le(33)...)       // client
	status = append(status, u16le(33)...)       // conn
	status = append(status, u16le(8)...)        // server

	db := "test"
	var body []byte
	body = append(body, u32le(1)...)
	body = append(body, u32le(0)...)
	body = append(body, byte(len(db)))
	body = append(body, u16le(0)...)
	body = append(body, u16le(uint16(len(status)))...)
	body = append(body, status...)
	body = append(body, append([]byte(db), 0)...)
	body = append(body, []byte("SELECT 1")...)

	dec := newDecoder(t, buildEvent(binlog.QueryEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	qe := ev.Body.(binlog.QueryEvent)
	if qe.StatusVars["flags2"].(uint32) != 1<<26 {
		t.Errorf("flags2 = %v, want %d", qe.StatusVars["flags2"], uint32(1<<26))
	}
	if qe.StatusVars["charset_server"].(uint16) != 8 {
		t.Errorf("charset_server = %v, want 8", qe.StatusVars["charset_server"])
	}
}

// A status_length that doesn't match the bytes actually consumed by its
// declared variables must fail with ErrOverReadStatus.
func TestDecoder_QueryEvent_OverReadStatus(t *testing.T) {
	var status []byte
	status = append(status, 0x00)           // StatusFlags2
	status = append(status, u32le(0)...)    // 4-byte payload
	// declare a status_length one byte short of what flags2 alone needs
	declaredLen := uint16(len(status) - 1)

	db := "test"
	var body []byte
	body = append(body, u32le(1)...)
	body = append(body, u32le(0)...)
	body = append(body, byte(len(db)))
	body = append(body, u16le(0)...)
	body = append(body, u16le(declaredLen)...)
	body = append(body, status...)
	body = append(body, append([]byte(db), 0)...)
	body = append(body, []byte("X")...)

	dec := newDecoder(t, buildEvent(binlog.QueryEventType, body))
	_, err := dec.NextEvent()
	if !errors.Is(err, binlog.ErrOverReadStatus) {
		t.Fatalf("err = %v, want ErrOverReadStatus", err)
	}
}

// An unrecognized status variable code aborts decoding: there is no
// generic length to skip an unknown entry by.
func TestDecoder_QueryEvent_UnknownStatusCode(t *testing.T) {
	status := []byte{0x7f} // not a recognized StatusVarCode

	db := "test"
	var body []byte
	body = append(body, u32le(1)...)
	body = append(body, u32le(0)...)
	body = append(body, byte(len(db)))
	body = append(body, u16le(0)...)
	body = append(body, u16le(uint16(len(status)))...)
	body = append(body, status...)
	body = append(body, append([]byte(db), 0)...)

	dec := newDecoder(t, buildEvent(binlog.QueryEventType, body))
	_, err := dec.NextEvent()
	if !errors.Is(err, binlog.ErrOverReadStatus) {
		t.Fatalf("err = %v, want ErrOverReadStatus", err)
	}
}

// max_query_length smaller than the query text truncates the returned
// Query but still consumes the full declared text from the reader.
func TestDecoder_QueryEvent_MaxQueryLength(t *testing.T) {
	db := "test"
	query := "SELECT * FROM widgets"
	var body []byte
	body = append(body, u32le(1)...)
	body = append(body, u32le(0)...)
	body = append(body, byte(len(db)))
	body = append(body, u16le(0)...)
	body = append(body, u16le(0)...)
	body = append(body, append([]byte(db), 0)...)
	body = append(body, []byte(query)...)

	stream := buildEvent(binlog.QueryEventType, body)
	// append a second, trivial event to prove the reader position wasn't
	// left mid-query by the truncation.
	stream = append(stream, buildEvent(binlog.XIDEventType, u64le(99))...)

	r := byteio.NewReader(bytes.NewReader(stream))
	fp := fieldreader.New(r)
	dec := binlog.NewDecoder(r, fp, binlog.WithMaxQueryLength(6))

	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	qe := ev.Body.(binlog.QueryEvent)
	if qe.Query != "SELECT" {
		t.Errorf("Query = %q, want %q", qe.Query, "SELECT")
	}

	ev2, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("decoding following event: %v", err)
	}
	xid := ev2.Body.(binlog.XIDEvent)
	if xid.XID != 99 {
		t.Errorf("XID = %d, want 99", xid.XID)
	}
}

// A table_map_event for test.t with [int, varchar(20),
// bit(10)], followed by a write_rows_event referencing it.
func TestDecoder_TableMapAndWriteRows(t *testing.T) {
	const tableID = 100

	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...) // flags
	tmBody = append(tmBody, lpstringz("test")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 3) // columns (varint, fits in one byte)
	tmBody = append(tmBody, byte(binlog.TypeLong), byte(binlog.TypeVarchar), byte(binlog.TypeBit))

	var meta []byte
	meta = append(meta, u16le(20)...) // varchar max_length
	meta = append(meta, 10, 0)        // bit: bits=10, bytes=0 -> bits_total=10
	tmBody = append(tmBody, byte(len(meta)))
	tmBody = append(tmBody, meta...)

	tmBody = append(tmBody, 0x02) // nullability bitmap: column 1 (varchar) nullable

	dec := newDecoder(t, buildEvent(binlog.TableMapEventType, tmBody))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	tm, ok := ev.Body.(binlog.TableMapEvent)
	if !ok {
		t.Fatalf("body type = %T, want TableMapEvent", ev.Body)
	}
	if tm.Definition.DB != "test" || tm.Definition.Table != "t" {
		t.Fatalf("db/table = %s.%s, want test.t", tm.Definition.DB, tm.Definition.Table)
	}
	if len(tm.Definition.Columns) != 3 {
		t.Fatalf("len(Columns) = %d, want 3", len(tm.Definition.Columns))
	}
	cols := tm.Definition.Columns
	if cols[0].Type != binlog.TypeLong || cols[0].Nullable {
		t.Errorf("col0 = %+v, want type long, not nullable", cols[0])
	}
	if cols[1].Type != binlog.TypeVarchar || !cols[1].Nullable || cols[1].Meta.MaxLength != 20 {
		t.Errorf("col1 = %+v, want type varchar, nullable, max_length 20", cols[1])
	}
	if cols[2].Type != binlog.TypeBit || cols[2].Meta.BitsTotal != 10 {
		t.Errorf("col2 = %+v, want type bit, bits_total 10", cols[2])
	}

	if _, ok := dec.TableCache().Lookup(tableID); !ok {
		t.Fatal("table_id not installed in cache after table_map_event")
	}

	// A following write_rows_event for that table, all three columns used,
	// one row {1, "hello", 0x3ff}.
	var wrBody []byte
	wrBody = append(wrBody, u48le(tableID)...)
	wrBody = append(wrBody, u16le(0)...) // flags
	wrBody = append(wrBody, u16le(2)...) // extra_data_length (no payload)
	wrBody = append(wrBody, 3)           // columns
	wrBody = append(wrBody, 0x07)        // columns_used: all three bits set
	wrBody = append(wrBody, 0x00)        // null_bitmap: none null
	wrBody = append(wrBody, u32le(1)...) // int column
	wrBody = append(wrBody, append([]byte{5}, []byte("hello")...)...) // varchar
	wrBody = append(wrBody, 0x03, 0xff)                               // bit(10) = 0x3ff, big-endian per MySQLType

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.WriteRowsEventV2, wrBody)...)

	r := byteio.NewReader(bytes.NewReader(stream))
	fp := fieldreader.New(r)
	dec2 := binlog.NewDecoder(r, fp)

	if _, err := dec2.NextEvent(); err != nil {
		t.Fatalf("table_map: %v", err)
	}
	ev2, err := dec2.NextEvent()
	if err != nil {
		t.Fatalf("write_rows: %v", err)
	}
	re, ok := ev2.Body.(binlog.RowsEvent)
	if !ok {
		t.Fatalf("body type = %T, want RowsEvent", ev2.Body)
	}
	if re.Table.Table != "t" {
		t.Fatalf("Table.Table = %q, want t", re.Table.Table)
	}

	row, err := dec2.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if len(row) != 1 {
		t.Fatalf("len(row) = %d, want 1 section for write_rows", len(row))
	}
	cells := row[0]
	if len(cells) != 3 {
		t.Fatalf("len(cells) = %d, want 3", len(cells))
	}
	if cells[0].Value.(int32) != 1 {
		t.Errorf("cells[0] = %+v, want int32(1)", cells[0])
	}
	if cells[1].Value.(string) != "hello" {
		t.Errorf("cells[1] = %+v, want \"hello\"", cells[1])
	}
	if cells[2].Value.(uint64) != 0x3ff {
		t.Errorf("cells[2] = %+v, want 0x3ff", cells[2])
	}

	if _, err := dec2.NextRow(); err != io.EOF {
		t.Fatalf("second NextRow err = %v, want io.EOF", err)
	}
}

// An update_rows_event with before/after images differing in
// one column.
func TestDecoder_UpdateRows_BeforeAfter(t *testing.T) {
	const tableID = 7

	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 2)
	tmBody = append(tmBody, byte(binlog.TypeLong), byte(binlog.TypeLong))
	tmBody = append(tmBody, 0) // metadata_length (no metadata for TypeLong)
	tmBody = append(tmBody, 0) // nullability bitmap: none nullable

	var urBody []byte
	urBody = append(urBody, u48le(tableID)...)
	urBody = append(urBody, u16le(0)...)
	urBody = append(urBody, u16le(2)...) // extra_data_length (no payload)
	urBody = append(urBody, 2)           // columns
	urBody = append(urBody, 0x03)        // columns_used (before): both
	urBody = append(urBody, 0x03) // columns_used (after): both

	urBody = append(urBody, 0x00)         // before null_bitmap
	urBody = append(urBody, u32le(1)...)  // before col0
	urBody = append(urBody, u32le(10)...) // before col1

	urBody = append(urBody, 0x00)         // after null_bitmap
	urBody = append(urBody, u32le(1)...)  // after col0 (unchanged)
	urBody = append(urBody, u32le(20)...) // after col1 (changed)

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.UpdateRowsEventV2, urBody)...)

	dec := newDecoder(t, stream)
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("table_map: %v", err)
	}
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("update_rows: %v", err)
	}
	if _, ok := ev.Body.(binlog.RowsEvent); !ok {
		t.Fatalf("body type = %T, want RowsEvent", ev.Body)
	}

	sections, err := dec.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("len(sections) = %d, want 2 (before, after)", len(sections))
	}
	before, after := sections[0], sections[1]
	if len(before) != 2 || len(after) != 2 {
		t.Fatalf("cell counts = %d/%d, want 2/2", len(before), len(after))
	}
	if before[1].Value.(int32) != 10 || after[1].Value.(int32) != 20 {
		t.Errorf("col1 before/after = %v/%v, want 10/20", before[1].Value, after[1].Value)
	}
	if before[0].Value.(int32) != after[0].Value.(int32) {
		t.Errorf("col0 changed across before/after, want unchanged")
	}
}

// Row images left undrained when NextEvent is called again are skipped, so
// the following event still decodes from a clean boundary.
func TestDecoder_UndrainedRowsAreSkipped(t *testing.T) {
	const tableID = 5

	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 1)
	tmBody = append(tmBody, byte(binlog.TypeLong))
	tmBody = append(tmBody, 0)
	tmBody = append(tmBody, 0)

	var wrBody []byte
	wrBody = append(wrBody, u48le(tableID)...)
	wrBody = append(wrBody, u16le(0)...)
	wrBody = append(wrBody, u16le(2)...) // extra_data_length (no payload)
	wrBody = append(wrBody, 1)
	wrBody = append(wrBody, 0x01)
	wrBody = append(wrBody, 0x00)
	wrBody = append(wrBody, u32le(77)...)

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.WriteRowsEventV2, wrBody)...)
	stream = append(stream, buildEvent(binlog.XIDEventType, u64le(5))...)

	dec := newDecoder(t, stream)
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("table_map: %v", err)
	}
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("write_rows: %v", err)
	}
	// skip NextRow entirely
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("xid after undrained rows: %v", err)
	}
	xid, ok := ev.Body.(binlog.XIDEvent)
	if !ok {
		t.Fatalf("body type = %T, want XIDEvent", ev.Body)
	}
	if xid.XID != 5 {
		t.Errorf("XID = %d, want 5", xid.XID)
	}
}

// A rows event referencing a table_id absent from the cache is fatal.
func TestDecoder_RowsEvent_UnknownTableID(t *testing.T) {
	var body []byte
	body = append(body, u48le(999)...)
	body = append(body, u16le(0)...)
	body = append(body, u16le(2)...) // extra_data_length (no payload)
	body = append(body, 0)           // columns = 0

	dec := newDecoder(t, buildEvent(binlog.WriteRowsEventV2, body))
	_, err := dec.NextEvent()
	if !errors.Is(err, binlog.ErrUnknownTableID) {
		t.Fatalf("err = %v, want ErrUnknownTableID", err)
	}
}

// A malformed event whose declared event_length is less
// than the 19-byte header is rejected before any body is read.
func TestDecoder_MalformedHeader(t *testing.T) {
	var raw []byte
	raw = append(raw, u32le(0)...)
	raw = append(raw, byte(binlog.XIDEventType))
	raw = append(raw, u32le(1)...)
	raw = append(raw, u32le(15)...) // event_length < 19
	raw = append(raw, u32le(15)...)
	raw = append(raw, u16le(0)...)

	dec := newDecoder(t, raw)
	_, err := dec.NextEvent()
	if !errors.Is(err, binlog.ErrMalformedHeader) {
		t.Fatalf("err = %v, want ErrMalformedHeader", err)
	}
}

// Rotate events invalidate the table-map cache: it belongs to the file
// being left behind.
func TestDecoder_RotateEvent_ResetsCache(t *testing.T) {
	const tableID = 1
	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 0) // no columns
	tmBody = append(tmBody, 0) // metadata_length

	name := "mysql-bin.000002"
	var rotBody []byte
	rotBody = append(rotBody, u64le(4)...)
	rotBody = append(rotBody, []byte(name)...)

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.RotateEventType, rotBody)...)

	dec := newDecoder(t, stream)
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("table_map: %v", err)
	}
	if _, ok := dec.TableCache().Lookup(tableID); !ok {
		t.Fatal("table_id should be cached before rotate")
	}

	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	re := ev.Body.(binlog.RotateEvent)
	if re.Name != name {
		t.Errorf("Name = %q, want %q", re.Name, name)
	}
	if _, ok := dec.TableCache().Lookup(tableID); ok {
		t.Fatal("table_id still cached after rotate")
	}
}

// IntVarEvent, XIDEvent, RandEvent, StopEvent, HeartbeatEvent: simple
// fixed-shape bodies, and every parsed event advances the reader by
// exactly event_length.
func TestDecoder_SimpleEvents(t *testing.T) {
	var stream []byte
	stream = append(stream, buildEvent(binlog.IntvarEventType, append([]byte{2}, u64le(55)...))...)
	stream = append(stream, buildEvent(binlog.XIDEventType, u64le(321))...)
	stream = append(stream, buildEvent(binlog.RandEventType, append(u64le(111), u64le(222)...))...)
	stream = append(stream, buildEvent(binlog.StopEventType, nil)...)
	stream = append(stream, buildEvent(binlog.HeartbeatEventType, nil)...)

	dec := newDecoder(t, stream)

	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	iv := ev.Body.(binlog.IntVarEvent)
	if iv.Kind != 2 || iv.Value != 55 {
		t.Errorf("IntVarEvent = %+v, want {Kind:2 Value:55}", iv)
	}

	ev, err = dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	xid := ev.Body.(binlog.XIDEvent)
	if xid.XID != 321 {
		t.Errorf("XID = %d, want 321", xid.XID)
	}

	ev, err = dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	rnd := ev.Body.(binlog.RandEvent)
	if rnd.Seed1 != 111 || rnd.Seed2 != 222 {
		t.Errorf("RandEvent = %+v, want {Seed1:111 Seed2:222}", rnd)
	}

	ev, err = dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.Body.(binlog.StopEvent); !ok {
		t.Fatalf("body type = %T, want StopEvent", ev.Body)
	}

	ev, err = dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.Body.(binlog.HeartbeatEvent); !ok {
		t.Fatalf("body type = %T, want HeartbeatEvent", ev.Body)
	}

	if _, err := dec.NextEvent(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF past the end of the stream", err)
	}
}

// A user_var_event for a non-null value carries a trailing flags byte whose
// low bit marks the value unsigned; the decoder must consume it so the next
// event still reads from a clean boundary.
func TestDecoder_UserVarEvent(t *testing.T) {
	name := "cnt"
	var body []byte
	body = append(body, u32le(uint32(len(name)))...)
	body = append(body, []byte(name)...)
	body = append(body, 0)             // is_null = false
	body = append(body, 2)             // type: INT_RESULT
	body = append(body, u32le(63)...)  // collation: binary
	body = append(body, u32le(8)...)   // value_length
	body = append(body, u64le(900)...) // value
	body = append(body, 0x01)          // flags: unsigned

	stream := buildEvent(binlog.UserVarEventType, body)
	stream = append(stream, buildEvent(binlog.XIDEventType, u64le(12))...)

	dec := newDecoder(t, stream)
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	uv, ok := ev.Body.(binlog.UserVarEvent)
	if !ok {
		t.Fatalf("body type = %T, want UserVarEvent", ev.Body)
	}
	if uv.Name != name || uv.IsNull {
		t.Errorf("event = %+v, want Name=%q, not null", uv, name)
	}
	if !uv.Unsigned {
		t.Error("Unsigned = false, want true (flags byte 0x01)")
	}

	ev2, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("decoding following event: %v", err)
	}
	if xid := ev2.Body.(binlog.XIDEvent); xid.XID != 12 {
		t.Errorf("XID = %d, want 12", xid.XID)
	}
}

func TestDecoder_UserVarEvent_Null(t *testing.T) {
	name := "v"
	var body []byte
	body = append(body, u32le(uint32(len(name)))...)
	body = append(body, []byte(name)...)
	body = append(body, 1) // is_null = true

	dec := newDecoder(t, buildEvent(binlog.UserVarEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	uv := ev.Body.(binlog.UserVarEvent)
	if !uv.IsNull || uv.Name != name {
		t.Fatalf("event = %+v, want IsNull and Name=%q", uv, name)
	}
}

// A table_map_event written under binlog_row_metadata=FULL appends a TLV
// region after the nullability bitmap; the UNSIGNED flags entry flips the
// signedness of numeric columns, and unrecognized entries are skipped so
// the following rows event still parses.
func TestDecoder_TableMap_ExtendedMetadata(t *testing.T) {
	const tableID = 9

	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 2)
	tmBody = append(tmBody, byte(binlog.TypeLong), byte(binlog.TypeVarchar))
	var meta []byte
	meta = append(meta, u16le(10)...) // varchar max_length
	tmBody = append(tmBody, byte(len(meta)))
	tmBody = append(tmBody, meta...)
	tmBody = append(tmBody, 0) // nullability bitmap

	tmBody = append(tmBody, 1, 1, 0x80)           // UNSIGNED flags: first numeric column
	tmBody = append(tmBody, 4, 4, 1, 'i', 1, 's') // column names (skipped)

	var wrBody []byte
	wrBody = append(wrBody, u48le(tableID)...)
	wrBody = append(wrBody, u16le(0)...)
	wrBody = append(wrBody, u16le(2)...) // extra_data_length (no payload)
	wrBody = append(wrBody, 2)
	wrBody = append(wrBody, 0x03)                 // columns_used
	wrBody = append(wrBody, 0x00)                 // null_bitmap
	wrBody = append(wrBody, u32le(0xffffffff)...) // int column
	wrBody = append(wrBody, append([]byte{2}, []byte("ok")...)...)

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.WriteRowsEventV2, wrBody)...)

	dec := newDecoder(t, stream)
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("table_map: %v", err)
	}
	tm := ev.Body.(binlog.TableMapEvent)
	if !tm.Definition.Columns[0].Unsigned {
		t.Fatal("Columns[0].Unsigned = false, want true")
	}
	if tm.Definition.Columns[1].Unsigned {
		t.Fatal("Columns[1].Unsigned = true, want false (not numeric)")
	}

	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("write_rows after extended metadata: %v", err)
	}
	row, err := dec.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if got := row[0][0].Value.(uint32); got != 0xffffffff {
		t.Errorf("unsigned int column = %v, want 4294967295", got)
	}
	if got := row[0][1].Value.(string); got != "ok" {
		t.Errorf("varchar column = %q, want %q", got, "ok")
	}
}

// A header flag bitmap decodes only the bits this package names; unknown
// bits are silently dropped, never mislabeled.
func TestDecoder_HeaderFlags(t *testing.T) {
	raw := uint16(binlog.FlagBinlogInUse) | uint16(binlog.FlagArtificial) | 0x8000 // 0x8000 unnamed
	flags := binlog.HeaderFlags(raw)
	if !flags["binlog_in_use"] || !flags["artificial"] {
		t.Fatalf("flags = %v, want binlog_in_use and artificial set", flags)
	}
	if len(flags) != 2 {
		t.Fatalf("len(flags) = %d, want 2 (unnamed bit must not appear)", len(flags))
	}
}

// An event type outside the closed enumeration decodes as an opaque body
// rather than failing.
func TestDecoder_UnknownEventType(t *testing.T) {
	dec := newDecoder(t, buildEvent(binlog.EventType(0x7e), []byte{1, 2, 3}))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	opaque, ok := ev.Body.(binlog.OpaqueEvent)
	if !ok {
		t.Fatalf("body type = %T, want OpaqueEvent", ev.Body)
	}
	if !bytes.Equal(opaque.Raw, []byte{1, 2, 3}) {
		t.Errorf("Raw = %v, want [1 2 3]", opaque.Raw)
	}
}

// A string column whose table_map metadata carries an enum/set real_type
// is remapped at decode time: the final type is enum/set, and its metadata
// holds only the packed-width Size, never the original string max-length
// shape.
func TestDecoder_TableMap_EnumRemap(t *testing.T) {
	var body []byte
	body = append(body, u48le(1)...)
	body = append(body, u16le(0)...)
	body = append(body, lpstringz("db")...)
	body = append(body, lpstringz("t")...)
	body = append(body, 1)
	body = append(body, byte(binlog.TypeString)) // column_types: tagged string

	meta := []byte{byte(binlog.TypeEnum), 1} // real_type=enum, size=1
	body = append(body, byte(len(meta)))
	body = append(body, meta...)
	body = append(body, 0) // nullability bitmap

	dec := newDecoder(t, buildEvent(binlog.TableMapEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	tm := ev.Body.(binlog.TableMapEvent)
	col := tm.Definition.Columns[0]
	if col.Type != binlog.TypeEnum {
		t.Fatalf("Type = %s, want enum", col.Type)
	}
	if col.Meta.Kind != binlog.MetaEnumSet || col.Meta.Size != 1 {
		t.Fatalf("Meta = %+v, want Kind=MetaEnumSet Size=1", col.Meta)
	}
	if col.Meta.StringMaxLength != 0 {
		t.Fatalf("StringMaxLength = %d, want 0 (no residual string-shape field)", col.Meta.StringMaxLength)
	}
}

// A table_map_event whose declared metadata_length doesn't match what its
// columns actually consume is malformed.
func TestDecoder_TableMap_MetadataLengthMismatch(t *testing.T) {
	var body []byte
	body = append(body, u48le(1)...)
	body = append(body, u16le(0)...)
	body = append(body, lpstringz("db")...)
	body = append(body, lpstringz("t")...)
	body = append(body, 1)
	body = append(body, byte(binlog.TypeVarchar))
	body = append(body, 99) // declared metadata_length, but varchar metadata is 2 bytes
	body = append(body, u16le(20)...)
	body = append(body, 0)

	dec := newDecoder(t, buildEvent(binlog.TableMapEventType, body))
	_, err := dec.NextEvent()
	if !errors.Is(err, binlog.ErrMalformedTableMap) {
		t.Fatalf("err = %v, want ErrMalformedTableMap", err)
	}
}

// A failed table_map_event decode must not clobber a prior good definition
// for the same table_id.
func TestDecoder_TableMap_FailedDecodeDoesNotClobberCache(t *testing.T) {
	const tableID = 1

	var goodBody []byte
	goodBody = append(goodBody, u48le(tableID)...)
	goodBody = append(goodBody, u16le(0)...)
	goodBody = append(goodBody, lpstringz("db")...)
	goodBody = append(goodBody, lpstringz("t")...)
	goodBody = append(goodBody, 0) // no columns
	goodBody = append(goodBody, 0) // metadata_length

	var badBody []byte
	badBody = append(badBody, u48le(tableID)...)
	badBody = append(badBody, u16le(0)...)
	badBody = append(badBody, lpstringz("db")...)
	badBody = append(badBody, lpstringz("t2")...)
	badBody = append(badBody, 1)
	badBody = append(badBody, byte(binlog.TypeVarchar))
	badBody = append(badBody, 99) // mismatched metadata_length again
	badBody = append(badBody, u16le(20)...)
	badBody = append(badBody, 0)

	stream := buildEvent(binlog.TableMapEventType, goodBody)
	stream = append(stream, buildEvent(binlog.TableMapEventType, badBody)...)

	dec := newDecoder(t, stream)
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("first table_map: %v", err)
	}
	if _, err := dec.NextEvent(); err == nil {
		t.Fatal("expected the second (malformed) table_map_event to fail")
	}

	def, ok := dec.TableCache().Lookup(tableID)
	if !ok {
		t.Fatal("table_id missing from cache after failed re-decode")
	}
	if def.Table != "t" {
		t.Fatalf("Table = %q, want %q (prior definition must survive)", def.Table, "t")
	}
}

// Over-reading a row image past the event body end is detected rather than
// silently returning short data.
func TestDecoder_OverReadRowImage(t *testing.T) {
	const tableID = 1
	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 1)
	tmBody = append(tmBody, byte(binlog.TypeLong))
	tmBody = append(tmBody, 0)
	tmBody = append(tmBody, 0)

	var wrBody []byte
	wrBody = append(wrBody, u48le(tableID)...)
	wrBody = append(wrBody, u16le(0)...)
	wrBody = append(wrBody, u16le(2)...) // extra_data_length (no payload)
	wrBody = append(wrBody, 1)
	wrBody = append(wrBody, 0x01) // columns_used
	wrBody = append(wrBody, 0x00) // null_bitmap
	wrBody = append(wrBody, 0x01) // only 1 of 4 bytes needed for the int32

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.WriteRowsEventV2, wrBody)...)

	dec := newDecoder(t, stream)
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("table_map: %v", err)
	}
	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("write_rows prefix: %v", err)
	}
	_, err := dec.NextRow()
	if !errors.Is(err, binlog.ErrOverReadRowImage) {
		t.Fatalf("err = %v, want ErrOverReadRowImage", err)
	}
}

// A datetime2 column carries a one-byte fractional-seconds precision in its
// table_map metadata; the row value itself is a 5-byte big-endian packed
// date-time plus the fractional part that precision dictates.
func TestDecoder_TableMap_DateTime2(t *testing.T) {
	const tableID = 3

	var tmBody []byte
	tmBody = append(tmBody, u48le(tableID)...)
	tmBody = append(tmBody, u16le(0)...)
	tmBody = append(tmBody, lpstringz("db")...)
	tmBody = append(tmBody, lpstringz("t")...)
	tmBody = append(tmBody, 1)
	tmBody = append(tmBody, byte(binlog.TypeDateTime2))
	tmBody = append(tmBody, 1) // metadata_length
	tmBody = append(tmBody, 0) // fsp = 0
	tmBody = append(tmBody, 0) // nullability bitmap

	// 2023-03-15 12:34:56, packed: sign bit, then 17 bits year*13+month,
	// 5 bits day, 5 bits hour, 6 bits minute, 6 bits second.
	packed := uint64(1)<<39 | uint64(2023*13+3)<<22 | 15<<17 | 12<<12 | 34<<6 | 56
	var wrBody []byte
	wrBody = append(wrBody, u48le(tableID)...)
	wrBody = append(wrBody, u16le(0)...)
	wrBody = append(wrBody, u16le(2)...) // extra_data_length (no payload)
	wrBody = append(wrBody, 1)
	wrBody = append(wrBody, 0x01) // columns_used
	wrBody = append(wrBody, 0x00) // null_bitmap
	for shift := 32; shift >= 0; shift -= 8 {
		wrBody = append(wrBody, byte(packed>>uint(shift)))
	}

	stream := buildEvent(binlog.TableMapEventType, tmBody)
	stream = append(stream, buildEvent(binlog.WriteRowsEventV2, wrBody)...)

	dec := newDecoder(t, stream)
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatalf("table_map: %v", err)
	}
	tm := ev.Body.(binlog.TableMapEvent)
	col := tm.Definition.Columns[0]
	if col.Meta.Kind != binlog.MetaFloatLike || col.Meta.Size != 0 {
		t.Fatalf("Meta = %+v, want Kind=MetaFloatLike Size=0", col.Meta)
	}

	if _, err := dec.NextEvent(); err != nil {
		t.Fatalf("write_rows: %v", err)
	}
	row, err := dec.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	got, ok := row[0][0].Value.(time.Time)
	if !ok {
		t.Fatalf("value type = %T, want time.Time", row[0][0].Value)
	}
	want := time.Date(2023, time.March, 15, 12, 34, 56, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("value = %v, want %v", got, want)
	}
}

// A server_version field that is shorter than its 50-byte allotment must
// be truncated at the first NUL, not returned with embedded zero padding.
func TestDecoder_FormatDescription_ServerVersionPadding(t *testing.T) {
	var body []byte
	body = append(body, u16le(4)...)
	ver := make([]byte, 50)
	copy(ver, "5.7.0")
	body = append(body, ver...)
	body = append(body, u32le(0)...)
	body = append(body, 19)

	dec := newDecoder(t, buildEvent(binlog.FormatDescriptionEventType, body))
	ev, err := dec.NextEvent()
	if err != nil {
		t.Fatal(err)
	}
	fd := ev.Body.(binlog.FormatDescriptionEvent)
	if fd.ServerVersion != "5.7.0" {
		t.Fatalf("ServerVersion = %q, want %q", fd.ServerVersion, "5.7.0")
	}
	if strings.Contains(fd.ServerVersion, "\x00") {
		t.Fatalf("ServerVersion contains embedded NUL: %q", fd.ServerVersion)
	}
}
