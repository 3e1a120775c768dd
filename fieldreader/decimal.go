package fieldreader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const digitsPerInteger = 9

var compressedBytes = []int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

func decimalSize(precision, scale int) int {
	integral := precision - scale
	uncompIntegral := integral / digitsPerInteger
	uncompFractional := scale / digitsPerInteger
	compIntegral := integral - uncompIntegral*digitsPerInteger
	compFractional := scale - uncompFractional*digitsPerInteger
	return uncompIntegral*4 + compressedBytes[compIntegral] +
		uncompFractional*4 + compressedBytes[compFractional]
}

func decodeDecimalCompressed(compIndex int, data []byte, mask uint8) (size int, value uint32) {
	size = compressedBytes[compIndex]
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = data[i] ^ mask
	}
	return size, uint32(bigEndian(buf))
}

// decodeDecimal decodes MySQL's NEWDECIMAL binary encoding into its decimal
// string representation. precision and scale come from the column's
// table_map metadata.
func decodeDecimal(data []byte, precision, scale int) (Decimal, error) {
	if precision <= 0 || scale < 0 || scale > precision {
		return "", fmt.Errorf("fieldreader: invalid decimal precision=%d scale=%d", precision, scale)
	}

	integral := precision - scale
	uncompIntegral := integral / digitsPerInteger
	uncompFractional := scale / digitsPerInteger
	compIntegral := integral - uncompIntegral*digitsPerInteger
	compFractional := scale - uncompFractional*digitsPerInteger

	binSize := uncompIntegral*4 + compressedBytes[compIntegral] +
		uncompFractional*4 + compressedBytes[compFractional]
	if binSize > len(data) {
		return "", fmt.Errorf("fieldreader: decimal buffer too short: have %d, need %d", len(data), binSize)
	}

	buf := make([]byte, binSize)
	copy(buf, data[:binSize])

	var mask uint32
	var res bytes.Buffer
	if buf[0]&0x80 == 0 {
		mask = 1<<32 - 1
		res.WriteString("-")
	}
	buf[0] ^= 0x80

	pos, value := decodeDecimalCompressed(compIntegral, buf, uint8(mask))
	res.WriteString(fmt.Sprintf("%d", value))

	for i := 0; i < uncompIntegral; i++ {
		value = binary.BigEndian.Uint32(buf[pos:]) ^ mask
		pos += 4
		res.WriteString(fmt.Sprintf("%09d", value))
	}

	res.WriteString(".")

	for i := 0; i < uncompFractional; i++ {
		value = binary.BigEndian.Uint32(buf[pos:]) ^ mask
		pos += 4
		res.WriteString(fmt.Sprintf("%09d", value))
	}

	if size, value := decodeDecimalCompressed(compFractional, buf[pos:], uint8(mask)); size > 0 {
		res.WriteString(fmt.Sprintf("%0*d", compFractional, value))
	}

	s := res.String()
	res.Reset()
	if s[0] == '-' {
		res.WriteString("-")
		s = s[1:]
	}
	for len(s) > 1 && s[0] == '0' && s[1] != '.' {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	res.WriteString(s)

	return Decimal(res.String()), nil
}

// Decimal is a MySQL DECIMAL/NUMERIC value, kept as its exact decimal
// string rather than an approximate float.
type Decimal string

func (d Decimal) String() string { return string(d) }

// Float64 returns the number as a float64, with the usual floating-point
// precision loss.
func (d Decimal) Float64() (float64, error) {
	return strconv.ParseFloat(string(d), 64)
}

// BigFloat returns the number as a *big.Float.
func (d Decimal) BigFloat() (*big.Float, error) {
	f, _, err := new(big.Float).Parse(string(d), 0)
	return f, err
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d), nil
}

// Enum is a decoded ENUM column value. Values is populated only when the
// table_map carried enum member names; this repo never requests that
// extended metadata, so Values is always empty and String falls back to
// the numeric index.
type Enum struct {
	Val    uint16
	Values []string
}

func (e Enum) String() string {
	if len(e.Values) > 0 {
		if e.Val == 0 {
			return ""
		}
		return e.Values[e.Val-1]
	}
	return fmt.Sprintf("%d", e.Val)
}

func (e Enum) MarshalJSON() ([]byte, error) {
	if len(e.Values) > 0 {
		return []byte(strconv.Quote(e.String())), nil
	}
	return []byte(e.String()), nil
}

// Set is a decoded SET column value. As with Enum, Values is always empty
// here.
type Set struct {
	Val    uint64
	Values []string
}

// Members returns the member names set in this value, if Values is populated.
func (s Set) Members() []string {
	var m []string
	for i, val := range s.Values {
		if s.Val&(1<<uint(i)) != 0 {
			m = append(m, val)
		}
	}
	return m
}

func (s Set) String() string {
	if len(s.Values) > 0 {
		var b strings.Builder
		for _, m := range s.Members() {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(m)
		}
		return b.String()
	}
	return fmt.Sprintf("%d", s.Val)
}

func (s Set) MarshalJSON() ([]byte, error) {
	if len(s.Values) > 0 {
		var buf bytes.Buffer
		for i, m := range s.Members() {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(m))
		}
		return append(append([]byte{'['}, buf.Bytes()...), ']'), nil
	}
	return []byte(s.String()), nil
}
