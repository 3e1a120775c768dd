package fieldreader

import (
	"fmt"
	"math"
	"time"

	binlog "github.com/lakeshore-data/binlogdecode"
)

// MySQLType decodes one column value given its (possibly string->enum/set
// remapped) type and the table_map metadata for its column.
func (p *Parser) MySQLType(typ binlog.ColumnType, meta binlog.ColumnMetadata, unsigned bool) (interface{}, error) {
	switch typ {
	case binlog.TypeTiny:
		v, err := p.U8()
		if err != nil {
			return nil, err
		}
		if unsigned {
			return v, nil
		}
		return int8(v), nil

	case binlog.TypeShort:
		v, err := p.U16()
		if err != nil {
			return nil, err
		}
		if unsigned {
			return v, nil
		}
		return int16(v), nil

	case binlog.TypeInt24:
		v, err := p.U24()
		if err != nil {
			return nil, err
		}
		if unsigned {
			return v, nil
		}
		if v&0x00800000 != 0 {
			v |= 0xff000000
		}
		return int32(v), nil

	case binlog.TypeLong:
		v, err := p.U32()
		if err != nil {
			return nil, err
		}
		if unsigned {
			return v, nil
		}
		return int32(v), nil

	case binlog.TypeLongLong:
		v, err := p.U64()
		if err != nil {
			return nil, err
		}
		if unsigned {
			return v, nil
		}
		return int64(v), nil

	case binlog.TypeFloat:
		v, err := p.U32()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil

	case binlog.TypeDouble:
		v, err := p.U64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil

	case binlog.TypeNewDecimal:
		precision := int(meta.Precision)
		scale := int(meta.Decimals)
		buf, err := p.Uint8Array(decimalSize(precision, scale))
		if err != nil {
			return nil, err
		}
		return decodeDecimal(buf, precision, scale)

	case binlog.TypeVarchar:
		size, err := p.lengthBySizeThreshold(meta.MaxLength)
		if err != nil {
			return nil, err
		}
		return p.NString(size)

	case binlog.TypeString, binlog.TypeVarString:
		size, err := p.lengthBySizeThreshold(meta.StringMaxLength)
		if err != nil {
			return nil, err
		}
		return p.NString(size)

	case binlog.TypeEnum:
		switch meta.Size {
		case 1:
			v, err := p.U8()
			if err != nil {
				return nil, err
			}
			return Enum{Val: uint16(v)}, nil
		case 2:
			v, err := p.U16()
			if err != nil {
				return nil, err
			}
			return Enum{Val: v}, nil
		default:
			return nil, fmt.Errorf("fieldreader: invalid enum size %d", meta.Size)
		}

	case binlog.TypeSet:
		n := meta.Size
		if n == 0 || n > 8 {
			return nil, fmt.Errorf("fieldreader: invalid set width %d", n)
		}
		raw, err := p.Uint8Array(int(n))
		if err != nil {
			return nil, err
		}
		return Set{Val: littleEndian(raw)}, nil

	case binlog.TypeBit:
		nbytes := (meta.BitsTotal + 7) / 8
		buf, err := p.Uint8Array(nbytes)
		if err != nil {
			return nil, err
		}
		return bigEndian(buf), nil

	case binlog.TypeBlob, binlog.TypeGeometry:
		size, err := p.uintFixed(int(meta.LengthSize))
		if err != nil {
			return nil, err
		}
		return p.Uint8Array(int(size))

	case binlog.TypeJSON:
		size, err := p.uintFixed(int(meta.LengthSize))
		if err != nil {
			return nil, err
		}
		buf, err := p.Uint8Array(int(size))
		if err != nil {
			return nil, err
		}
		v, err := decodeJSONValue(buf)
		if err != nil {
			return nil, err
		}
		return JSONValue{Val: v}, nil

	case binlog.TypeDate:
		v, err := p.U24()
		if err != nil {
			return nil, err
		}
		var year, month, day uint32
		if v != 0 {
			year, month, day = v/(16*32), v/32%16, v%32
		}
		return time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC), nil

	case binlog.TypeDateTime2:
		buf, err := p.Uint8Array(5)
		if err != nil {
			return nil, err
		}
		dt := bigEndian(buf)
		ym := bitSlice(dt, 40, 1, 17)
		year, month := ym/13, ym%13
		day := bitSlice(dt, 40, 18, 5)
		hour := bitSlice(dt, 40, 23, 5)
		min := bitSlice(dt, 40, 28, 6)
		sec := bitSlice(dt, 40, 34, 6)
		frac, err := p.fractionalSeconds(meta.Size)
		if err != nil {
			return nil, err
		}
		return time.Date(year, time.Month(month), day, hour, min, sec, frac*1000, time.UTC), nil

	case binlog.TypeTimestamp2:
		buf, err := p.Uint8Array(4)
		if err != nil {
			return nil, err
		}
		sec := bigEndian(buf)
		frac, err := p.fractionalSeconds(meta.Size)
		if err != nil {
			return nil, err
		}
		return time.Unix(int64(sec), int64(frac)*1000), nil

	case binlog.TypeTime2:
		buf, err := p.Uint8Array(3)
		if err != nil {
			return nil, err
		}
		t := bigEndian(buf)
		sign := bitSlice(t, 24, 0, 1)
		hour := bitSlice(t, 24, 2, 10)
		min := bitSlice(t, 24, 12, 6)
		sec := bitSlice(t, 24, 18, 6)
		var frac int
		if sign == 0 {
			hour = ^hour & mask(10)
			min = ^min & mask(6)
			sec = ^sec & mask(6)
			frac, err = p.fractionalSecondsNegative(meta.Size)
			if err != nil {
				return nil, err
			}
			if frac == 0 && sec < 59 {
				sec++
			}
		} else {
			frac, err = p.fractionalSeconds(meta.Size)
			if err != nil {
				return nil, err
			}
		}
		v := time.Duration(hour)*time.Hour +
			time.Duration(min)*time.Minute +
			time.Duration(sec)*time.Second +
			time.Duration(frac)*time.Microsecond
		if sign == 0 {
			v = -v
		}
		return v, nil

	case binlog.TypeYear:
		v, err := p.U8()
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return 0, nil
		}
		return 1900 + int(v), nil

	case binlog.TypeNull:
		return nil, nil
	}

	return nil, fmt.Errorf("fieldreader: decode of mysql type %s is not implemented", typ)
}

// lengthBySizeThreshold reads a 1-byte length if the column's declared
// maximum fits in a byte, else a 2-byte length (the varchar/string
// convention for encoding their own value's length prefix).
func (p *Parser) lengthBySizeThreshold(declaredMax uint16) (int, error) {
	if declaredMax < 256 {
		n, err := p.U8()
		return int(n), err
	}
	n, err := p.U16()
	return int(n), err
}

// uintFixed reads n bytes as a little-endian integer, used for the
// length-size-dependent prefixes of blob/geometry/json values.
func (p *Parser) uintFixed(n int) (uint64, error) {
	buf, err := p.Uint8Array(n)
	if err != nil {
		return 0, err
	}
	return littleEndian(buf), nil
}

func bitSlice(v uint64, bits, off, length int) int {
	v >>= uint(bits - (off + length))
	return int(v & ((1 << uint(length)) - 1))
}

func (p *Parser) fractionalSeconds(meta uint8) (int, error) {
	n := (int(meta) + 1) / 2
	buf, err := p.Uint8Array(n)
	if err != nil {
		return 0, err
	}
	v := bigEndian(buf)
	return int(v * uint64(math.Pow(100, float64(3-n)))), nil
}

func (p *Parser) fractionalSecondsNegative(meta uint8) (int, error) {
	n := (int(meta) + 1) / 2
	buf, err := p.Uint8Array(n)
	if err != nil {
		return 0, err
	}
	v := int(bigEndian(buf))
	if v != 0 {
		bits := n * 8
		v = ^v & mask(bits)
		v = (v & unsetSignMask(bits)) + 1
	}
	return v * int(math.Pow(100, float64(3-n))), nil
}

func mask(bits int) int {
	return (1 << uint(bits)) - 1
}

func unsetSignMask(bits int) int {
	return ^(1 << uint(bits))
}
