package binlog

// QueryEvent is the body of a query_event: a statement executed outside
// row-based replication's row images (DDL, or DML under statement-based
// replication), together with the session state the statement ran under.
//
// https://dev.mysql.com/doc/internals/en/query-event.html
type QueryEvent struct {
	ThreadID    uint32
	ElapsedTime uint32
	ErrorCode   uint16
	StatusVars  map[string]interface{}
	Database    string
	Query       string
}

// decodeQuery parses a query_event body, including its status-variable TLV
// block. maxQueryLength, if positive, truncates the returned Query string;
// the full declared query text is always consumed from the reader
// regardless, so truncation never desyncs the stream position.
func decodeQuery(src ByteReader, fp FieldParser, h EventHeader, maxQueryLength int) (QueryEvent, error) {
	threadID, err := fp.U32()
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: thread_id")
	}
	elapsed, err := fp.U32()
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: elapsed_time")
	}
	dbLen, err := fp.U8()
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: db_length")
	}
	errCode, err := fp.U16()
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: error_code")
	}
	statusLen, err := fp.U16()
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: status_length")
	}

	statusStart := src.Position()
	statusVars, err := decodeStatusVars(fp, uint64(statusLen), statusStart, src)
	if err != nil {
		return QueryEvent{}, err
	}

	db, err := fp.NStringZ(int(dbLen))
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: db")
	}

	remaining := h.remaining(src)
	query, err := fp.NString(int(remaining))
	if err != nil {
		return QueryEvent{}, decodeError(ErrShortRead, "query: sql_text")
	}
	if maxQueryLength > 0 && len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}

	return QueryEvent{
		ThreadID:    threadID,
		ElapsedTime: elapsed,
		ErrorCode:   errCode,
		StatusVars:  statusVars,
		Database:    db,
		Query:       query,
	}, nil
}

// decodeStatusVars reads the status-variable TLV block of a query_event.
// Each entry is a one-byte StatusVarCode followed by a payload whose shape
// depends on the code. Reading past the declared statusLen is
// ErrOverReadStatus; unrecognized codes abort the same way, since there is
// no generic length to skip an unknown entry by.
func decodeStatusVars(fp FieldParser, statusLen uint64, statusStart uint64, src ByteReader) (map[string]interface{}, error) {
	vars := make(map[string]interface{})
	for src.Position()-statusStart < statusLen {
		codeByte, err := fp.U8()
		if err != nil {
			return nil, decodeError(ErrOverReadStatus, "query: status code")
		}
		code := StatusVarCode(codeByte)

		switch code {
		case StatusFlags2:
			v, err := fp.U32()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: flags2")
			}
			vars["flags2"] = v

		case StatusSQLMode:
			v, err := fp.U64()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: sql_mode")
			}
			vars["sql_mode"] = v

		case StatusCatalog:
			v, err := fp.LPString()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: catalog")
			}
			vars["catalog"] = v

		case StatusCatalogDeprecated:
			// pre-5.0.4 servers wrote the catalog with a trailing NUL
			v, err := fp.LPStringZ()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: catalog (deprecated)")
			}
			vars["catalog"] = v

		case StatusAutoIncrement:
			increment, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: auto_increment_increment")
			}
			offset, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: auto_increment_offset")
			}
			vars["auto_increment_increment"] = increment
			vars["auto_increment_offset"] = offset

		case StatusCharset:
			client, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: charset client")
			}
			conn, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: charset connection")
			}
			server, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: charset server")
			}
			vars["charset_client"] = client
			vars["charset_connection"] = conn
			vars["charset_server"] = server

		case StatusTimeZone:
			v, err := fp.LPString()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: time_zone")
			}
			vars["time_zone"] = v

		case StatusLCTimeNames:
			v, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: lc_time_names")
			}
			vars["lc_time_names"] = v

		case StatusCharsetDatabase:
			v, err := fp.U16()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: charset_database")
			}
			vars["charset_database"] = v

		case StatusTableMapForUpdate:
			v, err := fp.U64()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: table_map_for_update")
			}
			vars["table_map_for_update"] = v

		case StatusMasterDataWritten:
			v, err := fp.U32()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: master_data_written")
			}
			vars["master_data_written"] = v

		case StatusInvokers:
			user, err := fp.LPString()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: invoker user")
			}
			host, err := fp.LPString()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: invoker host")
			}
			vars["invoker_user"] = user
			vars["invoker_host"] = host

		case StatusUpdatedDBNames:
			count, err := fp.U8()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: updated_db_names count")
			}
			names := make([]string, count)
			for i := range names {
				name, err := fp.StringZ()
				if err != nil {
					return nil, decodeError(ErrOverReadStatus, "query: updated_db_names[%d]", i)
				}
				names[i] = name
			}
			vars["updated_db_names"] = names

		case StatusMicroseconds:
			v, err := fp.U24()
			if err != nil {
				return nil, decodeError(ErrOverReadStatus, "query: microseconds")
			}
			vars["microseconds"] = v

		default:
			return nil, decodeError(ErrOverReadStatus, "query: unrecognized status code 0x%02x", codeByte)
		}
	}

	if src.Position()-statusStart != statusLen {
		return nil, decodeError(ErrOverReadStatus,
			"query: status_length declared %d, consumed %d", statusLen, src.Position()-statusStart)
	}

	return vars, nil
}
