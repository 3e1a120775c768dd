package binlog

// Column describes one column of a cached table definition, as declared by
// the most recent table_map_event for that table.
type Column struct {
	Ordinal  int
	Type     ColumnType
	Nullable bool
	Unsigned bool
	Meta     ColumnMetadata
}

// TableDefinition is the cached shape of a table, keyed by table_id. It is
// installed atomically by a table_map_event and read by subsequent rows
// events for the same id.
type TableDefinition struct {
	TableID uint64
	DB      string
	Table   string
	Columns []Column
}

// TableCache is the decoder-local mapping from table_id to the most
// recently seen TableDefinition. It is owned outright by a single Decoder
// and is never shared across decoders.
type TableCache struct {
	defs map[uint64]*TableDefinition
}

// NewTableCache returns an empty table cache.
func NewTableCache() *TableCache {
	return &TableCache{defs: make(map[uint64]*TableDefinition)}
}

// Lookup returns the cached definition for tableID, if any.
func (c *TableCache) Lookup(tableID uint64) (*TableDefinition, bool) {
	def, ok := c.defs[tableID]
	return def, ok
}

// install overwrites any previous definition for def.TableID. Called only
// once a table_map_event body has been fully and successfully decoded, so a
// partial decode never replaces a good prior definition.
func (c *TableCache) install(def *TableDefinition) {
	c.defs[def.TableID] = def
}

// Reset clears the cache. Binlog file rotation invalidates every table_id
// previously assigned by the server, since a fresh sequence of
// table_map_events will be written at the top of the new file before any
// rows event references them again.
func (c *TableCache) Reset() {
	c.defs = make(map[uint64]*TableDefinition)
}
