package binlog

import (
	"errors"
	"io"
)

// HeaderSize is the fixed size, in bytes, of the common event header that
// begins every binlog event.
//
// https://dev.mysql.com/doc/internals/en/binlog-event-header.html
const HeaderSize = 19

// EventHeader is the 19-byte common header every binlog event begins with.
type EventHeader struct {
	Timestamp    uint32
	EventType    EventType
	ServerID     uint32
	EventLength  uint32
	NextPosition uint32
	Flags        map[string]bool

	// bodyEnd is the absolute stream offset one past this event's last
	// body byte, computed as this header's start position + EventLength.
	bodyEnd uint64
}

// decodeHeader reads the common event header starting at the source's
// current position and returns it. The header records the absolute body-end
// offset body parsers must not read past.
func decodeHeader(src ByteReader, fp FieldParser) (EventHeader, error) {
	start := src.Position()

	timestamp, err := fp.U32()
	if err != nil {
		// a clean end of stream at an event boundary is not an error
		if errors.Is(err, io.EOF) {
			return EventHeader{}, io.EOF
		}
		return EventHeader{}, decodeError(ErrShortRead, "header: timestamp")
	}
	typeByte, err := fp.U8()
	if err != nil {
		return EventHeader{}, decodeError(ErrShortRead, "header: event_type")
	}
	serverID, err := fp.U32()
	if err != nil {
		return EventHeader{}, decodeError(ErrShortRead, "header: server_id")
	}
	eventLength, err := fp.U32()
	if err != nil {
		return EventHeader{}, decodeError(ErrShortRead, "header: event_length")
	}
	if eventLength < HeaderSize {
		return EventHeader{}, decodeError(ErrMalformedHeader,
			"header: event_length %d < %d", eventLength, HeaderSize)
	}
	nextPos, err := fp.U32()
	if err != nil {
		return EventHeader{}, decodeError(ErrShortRead, "header: next_position")
	}
	flagBits, err := fp.U16()
	if err != nil {
		return EventHeader{}, decodeError(ErrShortRead, "header: flags")
	}

	h := EventHeader{
		Timestamp:    timestamp,
		EventType:    EventType(typeByte),
		ServerID:     serverID,
		EventLength:  eventLength,
		NextPosition: nextPos,
		Flags:        HeaderFlags(flagBits),
		bodyEnd:      start + uint64(eventLength),
	}
	return h, nil
}

// remaining returns the number of bytes left in this event's body.
func (h EventHeader) remaining(src ByteReader) uint64 {
	return src.Remaining(h.bodyEnd)
}
