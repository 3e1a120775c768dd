// Command binlogdump decodes a MySQL binlog file (or a directory of
// rotated binlog files) and prints each event as JSON.
//
// binlogdump -dir /var/lib/mysql -file mysql-bin.000001
// binlogdump -dir /var/lib/mysql -dsn 'repl:pw@tcp(127.0.0.1:3306)/'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	binlog "github.com/lakeshore-data/binlogdecode"
	"github.com/lakeshore-data/binlogdecode/fieldreader"
	"github.com/lakeshore-data/binlogdecode/filesource"
	"github.com/lakeshore-data/binlogdecode/mysqlsource"
)

func main() {
	dir := flag.String("dir", "", "directory of binlog files (required)")
	file := flag.String("file", "", "binlog file to start from; defaults to the latest in binlog.index")
	dsn := flag.String("dsn", "", "optional MySQL DSN to fetch the server's current master status from")
	maxQueryLength := flag.Int("max-query-length", 0, "truncate query_event text to this many bytes (0 = unbounded)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "binlogdump: -dir is required")
		os.Exit(2)
	}

	startFile := *file
	if *dsn != "" {
		ms, err := fetchMasterStatus(*dsn, log)
		if err != nil {
			log.WithError(err).Fatal("fetching master status")
		}
		log.WithFields(logrus.Fields{"file": ms.File, "position": ms.Position}).Info("server master status")
		if startFile == "" {
			startFile = ms.File
		}
	}

	src, err := openSource(*dir, startFile, log)
	if err != nil {
		log.WithError(err).Fatal("opening binlog source")
	}

	fp := fieldreader.New(src)
	decoder := binlog.NewDecoder(src, fp, binlog.WithMaxQueryLength(*maxQueryLength))
	enc := json.NewEncoder(os.Stdout)

	for {
		event, err := decoder.NextEvent()
		if err == io.EOF {
			log.Info("end of binlog stream")
			return
		}
		if err != nil {
			log.WithError(err).Fatal("decoding event")
		}

		if err := enc.Encode(event); err != nil {
			log.WithError(err).Fatal("encoding event")
		}

		if _, ok := event.Body.(binlog.RowsEvent); ok {
			for {
				row, err := decoder.NextRow()
				if err == io.EOF {
					break
				}
				if err != nil {
					log.WithError(err).Fatal("decoding row")
				}
				if err := enc.Encode(row); err != nil {
					log.WithError(err).Fatal("encoding row")
				}
			}
		}
	}
}

func openSource(dir, file string, log *logrus.Logger) (*filesource.Source, error) {
	if file != "" {
		log.WithField("file", file).Info("opening binlog file")
		return filesource.Open(dir, file)
	}
	log.Info("no -file given, opening latest file from binlog.index")
	return filesource.OpenLatest(dir)
}

func fetchMasterStatus(dsn string, log *logrus.Logger) (mysqlsource.MasterStatus, error) {
	src, err := mysqlsource.Open(dsn, log)
	if err != nil {
		return mysqlsource.MasterStatus{}, err
	}
	defer src.Close()
	return src.MasterStatus(context.Background())
}
