package binlog

// ByteReader is the external, positioned byte source the decoder consumes.
// Implementations live outside this package (see package byteio and
// package filesource for the concrete adapters this repo supplies).
//
// https://dev.mysql.com/doc/internals/en/binlog-event-header.html
type ByteReader interface {
	// Position returns the current absolute offset into the stream.
	Position() uint64

	// Read returns exactly n bytes, advancing the stream by n. Following
	// the io.ReadFull convention, it fails with io.EOF if the stream has no
	// bytes left at all and io.ErrUnexpectedEOF if fewer than n bytes remain
	// before the stream ends (not merely before an event's declared body
	// end). The decoder reports such failures as ErrShortRead, except a
	// clean io.EOF at an event boundary.
	Read(n int) ([]byte, error)

	// Remaining returns the number of bytes left before the given
	// absolute offset (typically an event's bodyEnd).
	Remaining(bodyEnd uint64) uint64
}

// MetaKind tags the shape of a ColumnMetadata value. Exactly one group of
// fields on ColumnMetadata is meaningful for a given Kind.
type MetaKind uint8

const (
	MetaNone MetaKind = iota
	MetaFloatLike
	MetaVarchar
	MetaBit
	MetaNewDecimal
	MetaBlobLike
	MetaStringLike
	MetaEnumSet
)

// ColumnMetadata is the per-column metadata read from a table_map_event,
// shaped by the column's (possibly remapped) type.
type ColumnMetadata struct {
	Kind MetaKind

	// MetaFloatLike: byte width of a float/double value, or the
	// fractional-seconds precision of a time2/datetime2/timestamp2 value.
	// MetaEnumSet: the value's packed width in bytes (1 or 2 for enum, the
	// set's byte count for set).
	Size uint8

	// MetaVarchar: maximum byte length of the column value.
	MaxLength uint16

	// MetaBit: raw bits/bytes fields and their combined total.
	Bits      uint8
	Bytes     uint8
	BitsTotal int

	// MetaNewDecimal: declared precision and scale.
	Precision uint8
	Decimals  uint8

	// MetaBlobLike: number of bytes used to encode the value's length
	// (blob, geometry, json).
	LengthSize uint8

	// MetaStringLike: maximum byte length, valid only when the column's
	// final type is neither Enum nor Set (those use Size above instead).
	StringMaxLength uint16
}

// FieldParser is the external primitive decoder the core consumes to turn
// raw bytes read from a ByteReader into typed values. Implementations live
// outside this package (see package fieldreader).
//
// Each method reads from whichever ByteReader it was constructed against;
// the core decoder never reads raw bytes itself except through this
// interface and ByteReader.Read for framing purposes.
type FieldParser interface {
	U8() (uint8, error)
	U16() (uint16, error)
	U24() (uint32, error)
	U32() (uint32, error)
	U48() (uint64, error)
	U64() (uint64, error)

	// Varint reads a MySQL length-encoded integer.
	Varint() (uint64, error)

	// NString reads exactly n bytes and returns them as a string.
	NString(n int) (string, error)

	// NStringZ reads n bytes then verifies and consumes a trailing NUL
	// terminator, returning the n bytes (without the terminator).
	NStringZ(n int) (string, error)

	// StringZ reads bytes up to and including the next NUL terminator,
	// returning the bytes read without the terminator. Used where a
	// string's length isn't known up front (e.g. query_event's
	// updated_db_names entries).
	StringZ() (string, error)

	// LPString reads a u8 length prefix then that many bytes.
	LPString() (string, error)

	// LPStringZ reads a u8 length prefix, that many bytes, then a NUL
	// terminator.
	LPStringZ() (string, error)

	// Uint8Array reads exactly n bytes verbatim.
	Uint8Array(n int) ([]byte, error)

	// BitArray reads ceil(n/8) bytes and returns n booleans, LSB-first
	// within each byte (the order MySQL uses for null bitmaps).
	BitArray(n int) ([]bool, error)

	// UintBitmapBySizeAndName reads `size` bytes as a little-endian
	// bitmap and returns the subset of named bits (from spec) that are
	// set.
	UintBitmapBySizeAndName(size int, spec map[string]uint64) (map[string]bool, error)

	// MySQLType decodes one value of the given (possibly remapped) type
	// using its column metadata.
	MySQLType(typ ColumnType, meta ColumnMetadata, unsigned bool) (interface{}, error)
}
