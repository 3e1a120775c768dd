package binlog

// decodeTableMap parses a table_map_event body and returns the table
// definition to be installed into the cache, plus the event's own flag
// bitmap. The cache is not mutated here: the caller installs the result
// only once decoding succeeds in full, so a failure partway through never
// clobbers a prior good definition for the same table_id.
//
// https://dev.mysql.com/doc/internals/en/table-map-event.html
func decodeTableMap(src ByteReader, fp FieldParser, h EventHeader) (*TableDefinition, map[string]bool, error) {
	tableID, err := fp.U48()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: table_id")
	}
	flags, err := fp.UintBitmapBySizeAndName(2, map[string]uint64{"bit_len_exact": 0x01})
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: flags")
	}

	db, err := fp.LPStringZ()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: db")
	}
	table, err := fp.LPStringZ()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: table")
	}

	numCol, err := fp.Varint()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: columns")
	}

	rawTypes, err := fp.Uint8Array(int(numCol))
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: column_types")
	}

	metadataLength, err := fp.Varint()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: metadata_length")
	}
	metaStart := src.Position()

	columns := make([]Column, numCol)
	for i := range columns {
		typ := ColumnType(rawTypes[i])
		finalType, meta, err := decodeColumnMetadata(fp, typ)
		if err != nil {
			return nil, nil, err
		}
		columns[i] = Column{Ordinal: i, Type: finalType, Meta: meta}
	}

	consumed := src.Position() - metaStart
	if consumed != metadataLength {
		return nil, nil, decodeError(ErrMalformedTableMap,
			"table_map: metadata_length declared %d, consumed %d", metadataLength, consumed)
	}

	nullable, err := fp.BitArray(int(numCol))
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "table_map: nullability_bitmap")
	}
	for i := range columns {
		columns[i].Nullable = nullable[i]
	}

	if err := decodeExtendedMetadata(src, fp, h, columns); err != nil {
		return nil, nil, err
	}

	def := &TableDefinition{
		TableID: tableID,
		DB:      db,
		Table:   table,
		Columns: columns,
	}
	return def, flags, nil
}

// decodeExtendedMetadata reads the TLV region servers append after the
// nullability bitmap when binlog_row_metadata is MINIMAL or FULL. Only the
// UNSIGNED flags of numeric columns are interpreted; every other entry is
// skipped by its declared size so the stream stays aligned on the next
// event's header.
//
// https://dev.mysql.com/worklog/task/?id=4618
func decodeExtendedMetadata(src ByteReader, fp FieldParser, h EventHeader, columns []Column) error {
	for h.remaining(src) > 0 {
		typ, err := fp.U8()
		if err != nil {
			return decodeError(ErrShortRead, "table_map: extended metadata type")
		}
		size, err := fp.Varint()
		if err != nil {
			return decodeError(ErrShortRead, "table_map: extended metadata length")
		}
		switch typ {
		case 1: // UNSIGNED flag of numeric columns, MSB first
			unsigned, err := fp.Uint8Array(int(size))
			if err != nil {
				return decodeError(ErrShortRead, "table_map: unsigned flags")
			}
			inum := 0
			for i := range columns {
				if !columns[i].Type.IsNumeric() {
					continue
				}
				if inum/8 < len(unsigned) {
					columns[i].Unsigned = unsigned[inum/8]&(1<<uint(7-inum%8)) != 0
				}
				inum++
			}
		default:
			if _, err := fp.Uint8Array(int(size)); err != nil {
				return decodeError(ErrShortRead, "table_map: extended metadata entry")
			}
		}
	}
	return nil
}

// decodeColumnMetadata reads one column's metadata per the shape dictated
// by its on-wire type, applying the string->enum/set remap inline so the
// final (type, metadata) pair is returned directly rather than fixed up
// after the fact.
func decodeColumnMetadata(fp FieldParser, typ ColumnType) (ColumnType, ColumnMetadata, error) {
	switch typ {
	case TypeFloat, TypeDouble, TypeTime2, TypeDateTime2, TypeTimestamp2:
		size, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: %s metadata", typ)
		}
		return typ, ColumnMetadata{Kind: MetaFloatLike, Size: size}, nil

	case TypeVarchar:
		maxLen, err := fp.U16()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: varchar metadata")
		}
		return typ, ColumnMetadata{Kind: MetaVarchar, MaxLength: maxLen}, nil

	case TypeBit:
		bits, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: bit metadata")
		}
		bytes, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: bit metadata")
		}
		return typ, ColumnMetadata{
			Kind:      MetaBit,
			Bits:      bits,
			Bytes:     bytes,
			BitsTotal: int(bytes)*8 + int(bits),
		}, nil

	case TypeNewDecimal:
		precision, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: newdecimal metadata")
		}
		decimals, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: newdecimal metadata")
		}
		return typ, ColumnMetadata{Kind: MetaNewDecimal, Precision: precision, Decimals: decimals}, nil

	case TypeBlob, TypeGeometry, TypeJSON:
		lengthSize, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: %s metadata", typ)
		}
		return typ, ColumnMetadata{Kind: MetaBlobLike, LengthSize: lengthSize}, nil

	case TypeString, TypeVarString:
		realTypeByte, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: string metadata")
		}
		realType := ColumnType(realTypeByte)
		if realType.IsEnumSet() {
			size, err := fp.U8()
			if err != nil {
				return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: enum/set metadata")
			}
			return realType, ColumnMetadata{Kind: MetaEnumSet, Size: size}, nil
		}
		maxLen, err := fp.U8()
		if err != nil {
			return typ, ColumnMetadata{}, decodeError(ErrShortRead, "table_map: string metadata")
		}
		return typ, ColumnMetadata{Kind: MetaStringLike, StringMaxLength: uint16(maxLen)}, nil

	default:
		return typ, ColumnMetadata{Kind: MetaNone}, nil
	}
}

// rowsEventState is the per-event bookkeeping a Decoder keeps while
// streaming a write/update/delete rows event's row images one at a time.
type rowsEventState struct {
	eventType   EventType
	table       *TableDefinition
	columnsUsed [2][]bool // index 0 = "before" (or sole set), 1 = "after"
	numCol      uint64
}

// decodeRowsPrefix parses the shared prefix of write_rows/update_rows/
// delete_rows events: table_id, flags, columns_used bitmap(s). It looks up
// the referenced table in cache, which is fatal if absent.
func decodeRowsPrefix(src ByteReader, fp FieldParser, h EventHeader, cache *TableCache) (*rowsEventState, map[string]bool, error) {
	tableID, err := fp.U48()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "rows: table_id")
	}
	table, ok := cache.Lookup(tableID)
	if !ok {
		return nil, nil, decodeError(ErrUnknownTableID, "rows: table_id %d", tableID)
	}

	flags, err := fp.UintBitmapBySizeAndName(2, map[string]uint64{
		"stmt_end":              uint64(RowsFlagStmtEnd),
		"no_foreign_key_checks": uint64(RowsFlagNoForeignKeyChecks),
		"relaxed_unique_checks": uint64(RowsFlagRelaxedUniqueChecks),
		"complete_rows":         uint64(RowsFlagCompleteRows),
	})
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "rows: flags")
	}

	switch h.EventType {
	case WriteRowsEventV2, UpdateRowsEventV2, DeleteRowsEventV2:
		// v2 events carry an extra-data region, length inclusive of its
		// own 2-byte prefix
		extraDataLength, err := fp.U16()
		if err != nil {
			return nil, nil, decodeError(ErrShortRead, "rows: extra_data_length")
		}
		if extraDataLength > 2 {
			if _, err := fp.Uint8Array(int(extraDataLength) - 2); err != nil {
				return nil, nil, decodeError(ErrShortRead, "rows: extra_data")
			}
		}
	}

	numCol, err := fp.Varint()
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "rows: columns")
	}

	st := &rowsEventState{eventType: h.EventType, table: table, numCol: numCol}

	before, err := fp.BitArray(int(numCol))
	if err != nil {
		return nil, nil, decodeError(ErrShortRead, "rows: columns_used")
	}

	switch {
	case h.EventType.IsWriteRows():
		st.columnsUsed[0] = before // a write carries only an "after" bitmap; it is the sole set
	case h.EventType.IsDeleteRows():
		st.columnsUsed[0] = before
	case h.EventType.IsUpdateRows():
		st.columnsUsed[0] = before
		after, err := fp.BitArray(int(numCol))
		if err != nil {
			return nil, nil, decodeError(ErrShortRead, "rows: columns_used (after)")
		}
		st.columnsUsed[1] = after
	}

	return st, flags, nil
}

// RowCell is one column slot of a decoded row image: either absent (column
// excluded by columns_used), null, or a decoded value.
type RowCell struct {
	Absent bool
	Null   bool
	Value  interface{}
}

// decodeRowImageSection decodes one null-bitmap-prefixed row image section
// (the "before" or "after" half of an update, or the sole image of a write
// or delete).
func decodeRowImageSection(src ByteReader, fp FieldParser, table *TableDefinition, used []bool) ([]RowCell, error) {
	nullBitmap, err := fp.BitArray(len(table.Columns))
	if err != nil {
		return nil, decodeError(ErrOverReadRowImage, "rows: null_bitmap")
	}
	cells := make([]RowCell, len(table.Columns))
	for i, col := range table.Columns {
		if i >= len(used) || !used[i] {
			cells[i] = RowCell{Absent: true}
			continue
		}
		if nullBitmap[i] {
			cells[i] = RowCell{Null: true}
			continue
		}
		v, err := fp.MySQLType(col.Type, col.Meta, col.Unsigned)
		if err != nil {
			return nil, decodeError(ErrOverReadRowImage, "rows: column %d (%s): %v", i, col.Type, err)
		}
		cells[i] = RowCell{Value: v}
	}
	return cells, nil
}
