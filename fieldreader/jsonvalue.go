package fieldreader

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	binlog "github.com/lakeshore-data/binlogdecode"
)

// JSONValue is a decoded MySQL JSON column value, carried as the Go value
// tree produced by decodeJSONValue (maps, slices, strings, numbers, bool,
// nil, or a MySQL-specific value for the custom types MySQL's binary JSON
// format embeds directly, e.g. DECIMAL and temporal values).
type JSONValue struct {
	Val interface{}
}

func (j JSONValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(j.Val)
	return buf.Bytes(), err
}

// MySQL's binary JSON format, per https://dev.mysql.com/worklog/task/?id=8132#tabs-8132-4
const (
	jsonSmallObj byte = iota
	jsonLargeObj
	jsonSmallArr
	jsonLargeArr
	jsonLiteral
	jsonInt16
	jsonUInt16
	jsonInt32
	jsonUInt32
	jsonInt64
	jsonUInt64
	jsonDouble
	jsonString
	jsonCustom = 0x0f
)

func decodeJSONValue(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	return decodeJSONValueType(data[0], data[1:])
}

func decodeJSONValueType(typ byte, data []byte) (interface{}, error) {
	switch typ {
	case jsonSmallObj:
		return decodeJSONComposite(data, true, true)
	case jsonLargeObj:
		return decodeJSONComposite(data, false, true)
	case jsonSmallArr:
		return decodeJSONComposite(data, true, false)
	case jsonLargeArr:
		return decodeJSONComposite(data, false, false)
	case jsonLiteral:
		return decodeJSONLiteral(data)
	case jsonInt16:
		v, err := decodeJSONUInt16(data)
		return int16(v), err
	case jsonUInt16:
		return decodeJSONUInt16(data)
	case jsonInt32:
		v, err := decodeJSONUInt32(data)
		return int32(v), err
	case jsonUInt32:
		return decodeJSONUInt32(data)
	case jsonInt64:
		v, err := decodeJSONUInt64(data)
		return int64(v), err
	case jsonUInt64:
		return decodeJSONUInt64(data)
	case jsonDouble:
		v, err := decodeJSONUInt64(data)
		return math.Float64frombits(v), err
	case jsonString:
		return decodeJSONString(data)
	case jsonCustom:
		return decodeJSONCustom(data)
	}
	return nil, fmt.Errorf("fieldreader: invalid json value type 0x%02x", typ)
}

func decodeJSONComposite(data []byte, small, obj bool) (interface{}, error) {
	var off int
	decodeUint := func() (uint32, error) {
		if small {
			v, err := decodeJSONUInt16(data[off:])
			off += 2
			return uint32(v), err
		}
		v, err := decodeJSONUInt32(data[off:])
		off += 4
		return v, err
	}

	elemCount, err := decodeUint()
	if err != nil {
		return nil, err
	}
	if _, err := decodeUint(); err != nil { // total size in bytes, unused here
		return nil, err
	}

	var keys []string
	if obj {
		keys = make([]string, elemCount)
		for i := uint32(0); i < elemCount; i++ {
			keyOff, err := decodeUint()
			if err != nil {
				return nil, err
			}
			keyLen, err := decodeJSONUInt16(data[off:])
			if err != nil {
				return nil, err
			}
			off += 2
			if len(data) < int(keyOff)+int(keyLen) {
				return nil, io.ErrUnexpectedEOF
			}
			keys[i] = string(data[keyOff : uint32(keyOff)+uint32(keyLen)])
		}
	}

	inline := func(typ byte) bool {
		switch typ {
		case jsonLiteral, jsonInt16, jsonUInt16:
			return true
		case jsonInt32, jsonUInt32:
			return !small
		}
		return false
	}

	vals := make([]interface{}, elemCount)
	for i := uint32(0); i < elemCount; i++ {
		typ := data[off]
		off++
		if inline(typ) {
			v, err := decodeJSONValueType(typ, data[off:])
			if err != nil {
				return nil, err
			}
			vals[i] = v
			if small {
				off += 2
			} else {
				off += 4
			}
			continue
		}
		valueOff, err := decodeUint()
		if err != nil {
			return nil, err
		}
		v, err := decodeJSONValueType(typ, data[valueOff:])
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	if obj {
		m := make(map[string]interface{}, elemCount)
		for i, key := range keys {
			m[key] = vals[i]
		}
		return m, nil
	}
	return vals, nil
}

func decodeJSONLiteral(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	switch data[0] {
	case 0x00:
		return nil, nil
	case 0x01:
		return true, nil
	case 0x02:
		return false, nil
	}
	return nil, fmt.Errorf("fieldreader: invalid json literal 0x%02x", data[0])
}

func decodeJSONUInt16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint16(data), nil
}

func decodeJSONUInt32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(data), nil
}

func decodeJSONUInt64(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint64(data), nil
}

func decodeJSONDataLen(data []byte) (uint64, []byte, error) {
	const maxVarintBytes = 5
	var size uint64
	for i := 0; i < maxVarintBytes; i++ {
		if len(data) == 0 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		v := data[0]
		data = data[1:]
		size |= uint64(v&0x7f) << uint(7*i)
		if v&0x80 == 0 {
			return size, data, nil
		}
	}
	return 0, nil, errors.New("fieldreader: invalid json data length varint")
}

func decodeJSONString(data []byte) (string, error) {
	size, data, err := decodeJSONDataLen(data)
	if err != nil {
		return "", err
	}
	if len(data) < int(size) {
		return "", io.ErrUnexpectedEOF
	}
	return string(data[:size]), nil
}

func decodeJSONCustom(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	typ := binlog.ColumnType(data[0])
	data = data[1:]
	size, data, err := decodeJSONDataLen(data)
	if err != nil {
		return nil, err
	}
	if len(data) < int(size) {
		return nil, io.ErrUnexpectedEOF
	}

	switch typ {
	case binlog.TypeNewDecimal:
		if len(data) < 2 {
			return nil, io.ErrUnexpectedEOF
		}
		precision := int(data[0])
		scale := int(data[1])
		return decodeDecimal(data[2:], precision, scale)

	case binlog.TypeTime:
		if len(data) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		v := int64(binary.LittleEndian.Uint64(data))
		sign := 1
		var hour, min, sec, frac int64
		if v != 0 {
			if v < 0 {
				v = -v
				sign = -1
			}
			frac = v % (1 << 24)
			v >>= 24
			hour = (v >> 12) % (1 << 10)
			min = (v >> 6) % (1 << 6)
			sec = v % (1 << 6)
		}
		return time.Duration(sign) * (time.Duration(hour)*time.Hour +
			time.Duration(min)*time.Minute +
			time.Duration(sec)*time.Second +
			time.Duration(frac)*time.Microsecond), nil

	case binlog.TypeDate, binlog.TypeDateTime, binlog.TypeTimestamp:
		if len(data) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint64(data)
		var year, month, day, hour, min, sec, frac uint64
		if v != 0 {
			frac = v % (1 << 24)
			v >>= 24
			ymd := v >> 17
			ym := ymd >> 5
			year, month, day = ym/13, ym%13, ymd%(1<<5)
			hms := v % (1 << 17)
			hour, min, sec = hms>>12, (hms>>6)%(1<<6), hms%(1<<6)
		}
		loc := time.UTC
		if typ == binlog.TypeTimestamp {
			loc = time.Local
		}
		return time.Date(int(year), time.Month(month), int(day), int(hour), int(min), int(sec), int(frac*1000), loc), nil

	default:
		return string(data), nil
	}
}
