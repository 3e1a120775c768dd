package binlog

import "strings"

// FormatDescriptionEvent is the first event of every binlog file, declaring
// the binlog format version and the server that wrote it.
type FormatDescriptionEvent struct {
	BinlogVersion   uint16
	ServerVersion   string
	CreateTimestamp uint32
	HeaderLength    uint8
}

func decodeFormatDescription(src ByteReader, fp FieldParser, h EventHeader) (FormatDescriptionEvent, error) {
	version, err := fp.U16()
	if err != nil {
		return FormatDescriptionEvent{}, decodeError(ErrShortRead, "format_description: binlog_version")
	}
	serverVersion, err := fp.NString(50)
	if err != nil {
		return FormatDescriptionEvent{}, decodeError(ErrShortRead, "format_description: server_version")
	}
	if i := strings.IndexByte(serverVersion, 0); i != -1 {
		serverVersion = serverVersion[:i]
	}
	createTimestamp, err := fp.U32()
	if err != nil {
		return FormatDescriptionEvent{}, decodeError(ErrShortRead, "format_description: create_timestamp")
	}
	headerLength, err := fp.U8()
	if err != nil {
		return FormatDescriptionEvent{}, decodeError(ErrShortRead, "format_description: header_length")
	}

	// The remainder of the body is the per-event-type post-header length
	// table, which this decoder doesn't consult; skip straight to the
	// declared body end.
	if err := skipRemaining(src, fp, h); err != nil {
		return FormatDescriptionEvent{}, err
	}

	return FormatDescriptionEvent{
		BinlogVersion:   version,
		ServerVersion:   serverVersion,
		CreateTimestamp: createTimestamp,
		HeaderLength:    headerLength,
	}, nil
}

// RotateEvent points a reader at the next binlog file to continue from.
type RotateEvent struct {
	Position uint64
	Name     string
}

func decodeRotate(src ByteReader, fp FieldParser, h EventHeader) (RotateEvent, error) {
	pos, err := fp.U64()
	if err != nil {
		return RotateEvent{}, decodeError(ErrShortRead, "rotate: position")
	}
	remaining := h.remaining(src)
	name, err := fp.NString(int(remaining))
	if err != nil {
		return RotateEvent{}, decodeError(ErrShortRead, "rotate: name")
	}
	return RotateEvent{Position: pos, Name: name}, nil
}

// IntVarEvent carries the value a prior statement assigned to LAST_INSERT_ID
// or an auto-increment counter, replayed ahead of a statement-based query
// that depends on it.
type IntVarEvent struct {
	Kind  uint8
	Value uint64
}

func decodeIntVar(fp FieldParser) (IntVarEvent, error) {
	kind, err := fp.U8()
	if err != nil {
		return IntVarEvent{}, decodeError(ErrShortRead, "intvar: type")
	}
	value, err := fp.U64()
	if err != nil {
		return IntVarEvent{}, decodeError(ErrShortRead, "intvar: value")
	}
	return IntVarEvent{Kind: kind, Value: value}, nil
}

// RandEvent carries the two seeds of the RAND() function's PRNG state,
// replayed ahead of a statement-based query that calls RAND().
type RandEvent struct {
	Seed1 uint64
	Seed2 uint64
}

func decodeRand(fp FieldParser) (RandEvent, error) {
	seed1, err := fp.U64()
	if err != nil {
		return RandEvent{}, decodeError(ErrShortRead, "rand: seed1")
	}
	seed2, err := fp.U64()
	if err != nil {
		return RandEvent{}, decodeError(ErrShortRead, "rand: seed2")
	}
	return RandEvent{Seed1: seed1, Seed2: seed2}, nil
}

// XIDEvent marks the commit of a transaction, carrying the storage engine's
// transaction id.
type XIDEvent struct {
	XID uint64
}

func decodeXID(fp FieldParser) (XIDEvent, error) {
	xid, err := fp.U64()
	if err != nil {
		return XIDEvent{}, decodeError(ErrShortRead, "xid: xid")
	}
	return XIDEvent{XID: xid}, nil
}

// UserVarEvent carries a user-defined variable's value, as referenced by a
// later statement-based query.
type UserVarEvent struct {
	Name      string
	IsNull    bool
	Type      uint8
	Collation uint32
	Value     []byte
	Unsigned  bool
}

func decodeUserVar(src ByteReader, fp FieldParser, h EventHeader) (UserVarEvent, error) {
	nameLen, err := fp.U32()
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: name_length")
	}
	name, err := fp.NString(int(nameLen))
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: name")
	}
	isNullByte, err := fp.U8()
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: is_null")
	}
	if isNullByte != 0 {
		ev := UserVarEvent{Name: name, IsNull: true}
		return ev, skipRemaining(src, fp, h)
	}

	typ, err := fp.U8()
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: type")
	}
	collation, err := fp.U32()
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: collation")
	}
	valLen, err := fp.U32()
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: value_length")
	}
	value, err := fp.Uint8Array(int(valLen))
	if err != nil {
		return UserVarEvent{}, decodeError(ErrShortRead, "user_var: value")
	}

	ev := UserVarEvent{
		Name:      name,
		Type:      typ,
		Collation: collation,
		Value:     value,
	}

	// servers 5.0+ append a flags byte for non-null values
	if h.remaining(src) > 0 {
		varFlags, err := fp.U8()
		if err != nil {
			return UserVarEvent{}, decodeError(ErrShortRead, "user_var: flags")
		}
		ev.Unsigned = varFlags&0x01 != 0
	}
	return ev, skipRemaining(src, fp, h)
}

// RowsQueryEvent carries the original SQL text of a statement whose effects
// were logged as row events, for diagnostic display.
type RowsQueryEvent struct {
	Query string
}

func decodeRowsQuery(src ByteReader, fp FieldParser, h EventHeader) (RowsQueryEvent, error) {
	lengthByte, err := fp.U8()
	if err != nil {
		return RowsQueryEvent{}, decodeError(ErrShortRead, "rows_query: length")
	}
	_ = lengthByte // legacy one-byte length, superseded by reading to body end
	remaining := h.remaining(src)
	query, err := fp.NString(int(remaining))
	if err != nil {
		return RowsQueryEvent{}, decodeError(ErrShortRead, "rows_query: query")
	}
	return RowsQueryEvent{Query: query}, nil
}

// IncidentEvent marks a gap in the binlog stream (e.g. LOST_EVENTS). Its
// body is treated as opaque diagnostic payload; a malformed or unrecognized
// body never aborts decoding of the stream around it.
type IncidentEvent struct {
	Raw []byte
}

func decodeIncident(src ByteReader, fp FieldParser, h EventHeader) (IncidentEvent, error) {
	remaining := h.remaining(src)
	raw, err := fp.Uint8Array(int(remaining))
	if err != nil {
		return IncidentEvent{}, decodeError(ErrShortRead, "incident: body")
	}
	return IncidentEvent{Raw: raw}, nil
}

// OpaqueEvent is the catch-all body for event types this package recognizes
// by name but does not interpret: pre-GA load-data events, GTID events, and
// any code outside the known enumeration. Its header is still fully decoded
// and returned to the caller; only the body is left as raw bytes.
type OpaqueEvent struct {
	Raw []byte
}

func decodeOpaque(src ByteReader, fp FieldParser, h EventHeader) (OpaqueEvent, error) {
	remaining := h.remaining(src)
	raw, err := fp.Uint8Array(int(remaining))
	if err != nil {
		return OpaqueEvent{}, decodeError(ErrShortRead, "opaque body")
	}
	return OpaqueEvent{Raw: raw}, nil
}

// skipRemaining discards whatever bytes remain in the current event body,
// without interpreting them.
func skipRemaining(src ByteReader, fp FieldParser, h EventHeader) error {
	remaining := h.remaining(src)
	if remaining == 0 {
		return nil
	}
	if _, err := fp.Uint8Array(int(remaining)); err != nil {
		return decodeError(ErrShortRead, "skip remaining body bytes")
	}
	return nil
}
