// Package fieldreader provides a concrete binlog.FieldParser implementation
// over a binlog.ByteReader, decoding MySQL's on-wire integer, string, and
// column-value encodings.
package fieldreader

import (
	"fmt"

	binlog "github.com/lakeshore-data/binlogdecode"
)

// Parser implements binlog.FieldParser by reading fixed-size chunks from a
// binlog.ByteReader and interpreting them as little-endian integers,
// length-prefixed strings, and MySQL column values.
type Parser struct {
	src binlog.ByteReader
}

// New returns a Parser that reads from src.
func New(src binlog.ByteReader) *Parser {
	return &Parser{src: src}
}

func (p *Parser) U8() (uint8, error) {
	b, err := p.src.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *Parser) U16() (uint16, error) {
	b, err := p.src.Read(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (p *Parser) U24() (uint32, error) {
	b, err := p.src.Read(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (p *Parser) U32() (uint32, error) {
	b, err := p.src.Read(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (p *Parser) U48() (uint64, error) {
	b, err := p.src.Read(6)
	if err != nil {
		return 0, err
	}
	return littleEndian(b), nil
}

func (p *Parser) U64() (uint64, error) {
	b, err := p.src.Read(8)
	if err != nil {
		return 0, err
	}
	return littleEndian(b), nil
}

// Varint reads a MySQL length-encoded integer: a single byte below 0xfb is
// the literal value; 0xfc/0xfd/0xfe introduce a 2/3/8-byte little-endian
// value.
func (p *Parser) Varint() (uint64, error) {
	b, err := p.U8()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0xfc:
		v, err := p.U16()
		return uint64(v), err
	case 0xfd:
		v, err := p.U24()
		return uint64(v), err
	case 0xfe:
		return p.U64()
	default:
		return uint64(b), nil
	}
}

func (p *Parser) NString(n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b, err := p.src.Read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Parser) NStringZ(n int) (string, error) {
	b, err := p.src.Read(n + 1)
	if err != nil {
		return "", err
	}
	if b[n] != 0 {
		return "", fmt.Errorf("fieldreader: expected NUL terminator after %d bytes", n)
	}
	return string(b[:n]), nil
}

func (p *Parser) StringZ() (string, error) {
	var buf []byte
	for {
		b, err := p.src.Read(1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}

func (p *Parser) LPString() (string, error) {
	n, err := p.U8()
	if err != nil {
		return "", err
	}
	return p.NString(int(n))
}

func (p *Parser) LPStringZ() (string, error) {
	n, err := p.U8()
	if err != nil {
		return "", err
	}
	return p.NStringZ(int(n))
}

func (p *Parser) Uint8Array(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	return p.src.Read(n)
}

// BitArray reads ceil(n/8) bytes and returns n booleans, in the
// LSB-first-within-each-byte order MySQL uses for null bitmaps and
// columns_used bitmaps.
func (p *Parser) BitArray(n int) ([]bool, error) {
	nbytes := (n + 7) / 8
	raw, err := p.Uint8Array(nbytes)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		bits[i] = raw[i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

// UintBitmapBySizeAndName reads `size` bytes as a little-endian bitmap and
// returns the subset of named bits in spec that are set.
func (p *Parser) UintBitmapBySizeAndName(size int, spec map[string]uint64) (map[string]bool, error) {
	raw, err := p.Uint8Array(size)
	if err != nil {
		return nil, err
	}
	v := littleEndian(raw)
	set := make(map[string]bool, len(spec))
	for name, bit := range spec {
		if v&bit != 0 {
			set[name] = true
		}
	}
	return set, nil
}

func littleEndian(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (uint(i) * 8)
	}
	return v
}

func bigEndian(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (uint(len(buf)-i-1) * 8)
	}
	return v
}
