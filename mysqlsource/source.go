// Package mysqlsource discovers a live MySQL server's current binlog
// position, and resolves table-name context that the wire protocol's
// binlog stream doesn't itself carry.
package mysqlsource

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// Source wraps a *sql.DB connection to a MySQL server for the auxiliary,
// non-streaming queries a binlog consumer needs alongside the replication
// stream itself: current master position, and (on cache miss) a table's
// column names for display.
type Source struct {
	db     *sql.DB
	log    *logrus.Logger
	tables map[string][]string // "db.table" -> ordered column names
}

// Open connects to the MySQL server described by dsn (the
// github.com/go-sql-driver/mysql DSN format: user:pass@tcp(host:port)/).
func Open(dsn string, log *logrus.Logger) (*Source, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlsource: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Source{db: db, log: log, tables: make(map[string][]string)}, nil
}

// Close releases the underlying connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// MasterStatus is the result of SHOW MASTER STATUS: the binlog file and
// position a replication client should start streaming from to pick up
// every change going forward.
type MasterStatus struct {
	File     string
	Position uint32
}

// MasterStatus runs SHOW MASTER STATUS against the connected server.
func (s *Source) MasterStatus(ctx context.Context) (MasterStatus, error) {
	row := s.db.QueryRowContext(ctx, "SHOW MASTER STATUS")

	var ms MasterStatus
	var binlogDoDB, binlogIgnoreDB, executedGtidSet sql.NullString
	if err := row.Scan(&ms.File, &ms.Position, &binlogDoDB, &binlogIgnoreDB, &executedGtidSet); err != nil {
		return MasterStatus{}, fmt.Errorf("mysqlsource: SHOW MASTER STATUS: %w", err)
	}
	s.log.WithFields(logrus.Fields{"file": ms.File, "position": ms.Position}).
		Debug("fetched master status")
	return ms, nil
}

// BinaryLogs runs SHOW BINARY LOGS, returning the server's full retained
// binlog file list in rotation order.
func (s *Source) BinaryLogs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SHOW BINARY LOGS")
	if err != nil {
		return nil, fmt.Errorf("mysqlsource: SHOW BINARY LOGS: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var files []string
	for rows.Next() {
		var name string
		size := new(int64)
		scanArgs := make([]interface{}, len(cols))
		scanArgs[0] = &name
		scanArgs[1] = size
		for i := 2; i < len(cols); i++ {
			var discard sql.NullString
			scanArgs[i] = &discard
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("mysqlsource: scan binary log row: %w", err)
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

// ColumnNames returns the ordered column names of db.table, querying
// INFORMATION_SCHEMA on first use and caching the result for the lifetime
// of this Source.
func (s *Source) ColumnNames(ctx context.Context, db, table string) ([]string, error) {
	key := db + "." + table
	if cols, ok := s.tables[key]; ok {
		return cols, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, db, table)
	if err != nil {
		return nil, fmt.Errorf("mysqlsource: query column names for %s: %w", key, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mysqlsource: scan column name for %s: %w", key, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.tables[key] = cols
	s.log.WithFields(logrus.Fields{"table": key, "columns": len(cols)}).Debug("fetched column names")
	return cols, nil
}
