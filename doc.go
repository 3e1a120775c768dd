/*
Package binlog decodes a MySQL binary log event stream into structured
records.

Given a ByteReader positioned at the start of an event and a FieldParser
reading from it, a Decoder produces one Event per call to NextEvent: a common
19-byte header plus a type-specific body. Row-mutation events
(write_rows/update_rows/delete_rows) carry only a numeric table_id; the
Decoder remembers the table definition installed by the most recent
table_map_event for that id and uses it to decode row images via NextRow.

	fp := fieldreader.New(src)
	dec := binlog.NewDecoder(src, fp)
	for {
		event, err := dec.NextEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		re, ok := event.Body.(binlog.RowsEvent)
		if !ok {
			continue
		}
		fmt.Printf("table: %s.%s\n", re.Table.DB, re.Table.Table)
		for {
			row, err := dec.NextRow()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			for _, section := range row {
				for i, cell := range section {
					col := re.Table.Columns[i]
					fmt.Printf("col=%d type=%s value=%v\n", col.Ordinal, col.Type, cell.Value)
				}
			}
		}
	}

The byte reader, field parser, and file-level framing are external
collaborators (see packages byteio, fieldreader, filesource); this package
decodes the event stream they expose and is agnostic to how it was sourced.
A Decoder is not safe for concurrent use; run one per binlog stream.
*/
package binlog
