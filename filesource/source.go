// Package filesource implements binlog.ByteReader over a directory of
// rotated binlog files, following the same binlog.index-driven discovery
// and magic-header framing a local MySQL server uses on disk.
package filesource

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// fileMagic is the 4-byte header every binlog file begins with.
var fileMagic = []byte{0xfe, 'b', 'i', 'n'}

// pollInterval is how long Read waits before re-checking binlog.index for a
// file that does not exist yet, when following a live server's binlog
// directory.
const pollInterval = time.Second

// Source is a binlog.ByteReader over a single binlog file, which
// transparently advances to the next file named in binlog.index once the
// current file is exhausted.
type Source struct {
	dir  string
	file *os.File
	name string
	off  uint64

	// follow, when true, makes Read retry (rather than return io.EOF) once
	// the current file is exhausted but binlog.index does not yet name a
	// successor - the live-tailing mode a replication client needs.
	follow bool
}

// ListFiles returns the binlog file names listed in dir's binlog.index, in
// order, or an empty slice if the index does not exist yet.
func ListFiles(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, "binlog.index"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		files = append(files, sc.Text())
	}
	return files, sc.Err()
}

// Open opens the named binlog file within dir for reading from its first
// event (immediately past the 4-byte magic header). Read advances across
// rotations named in binlog.index; follow is set, so once the index names
// no successor Read waits for one instead of returning io.EOF.
func Open(dir, name string) (*Source, error) {
	f, err := openBinlogFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &Source{dir: dir, file: f, name: name, off: 4, follow: true}, nil
}

// OpenLatest opens the most recently rotated file named in dir's
// binlog.index, the usual starting point for tailing a live server.
func OpenLatest(dir string) (*Source, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("filesource: %s: binlog.index is empty", dir)
	}
	return Open(dir, files[len(files)-1])
}

func openBinlogFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("filesource: %s: %w", path, err)
	}
	if !bytes.Equal(header, fileMagic) {
		f.Close()
		return nil, fmt.Errorf("filesource: %s: missing binlog magic header", path)
	}
	return f, nil
}

// Position returns the current absolute offset within the current binlog
// file. A rotation to the next file resets this to 4 (past the new file's
// magic header); rotations only ever occur on an event boundary, so this
// never happens mid-decode of a single event.
func (s *Source) Position() uint64 {
	return s.off
}

// Remaining returns the bytes left before bodyEnd in the current file.
func (s *Source) Remaining(bodyEnd uint64) uint64 {
	if s.off >= bodyEnd {
		return 0
	}
	return bodyEnd - s.off
}

// Read returns exactly n bytes, transparently advancing to the next
// rotated file (per binlog.index) if the current file runs out mid-read.
func (s *Source) Read(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := s.file.Read(buf[read:])
		read += m
		s.off += uint64(m)
		if read == n {
			break
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err != io.EOF {
			continue
		}
		if advErr := s.advance(); advErr != nil {
			if advErr == io.EOF && read > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, advErr
		}
	}
	return buf, nil
}

// advance switches to the file named immediately after the current one in
// binlog.index, blocking (if follow is set) until that file exists.
func (s *Source) advance() error {
	for {
		next, ok, err := s.nextFileName()
		if err != nil {
			return err
		}
		if ok {
			f, err := openBinlogFile(filepath.Join(s.dir, next))
			if err != nil {
				return err
			}
			s.file.Close()
			s.file = f
			s.name = next
			s.off = 4
			return nil
		}
		if !s.follow {
			return io.EOF
		}
		time.Sleep(pollInterval)
	}
}

func (s *Source) nextFileName() (string, bool, error) {
	files, err := ListFiles(s.dir)
	if err != nil {
		return "", false, err
	}
	for i, name := range files {
		if name == s.name && i+1 < len(files) {
			return files[i+1], true, nil
		}
	}
	return "", false, nil
}

// Name returns the name of the file currently being read.
func (s *Source) Name() string {
	return s.name
}

// SequenceNumber returns the numeric sequence suffix of the file currently
// being read (e.g. "mysql-bin.000042" -> 42), for diagnostic display.
func (s *Source) SequenceNumber() (int, error) {
	return sequenceNumber(s.name)
}

// normalizeSuffix strips leading zeros from a binlog file's numeric
// sequence suffix, matching MySQL's own index-file naming convention.
func normalizeSuffix(suffix string) string {
	for len(suffix) > 1 && suffix[0] == '0' {
		suffix = suffix[1:]
	}
	return suffix
}

// sequenceNumber extracts the numeric sequence suffix from a binlog file
// name, for diagnostic display (e.g. "mysql-bin.000042" -> 42).
func sequenceNumber(name string) (int, error) {
	dot := strings.LastIndexByte(name, '.')
	if dot == -1 {
		return 0, fmt.Errorf("filesource: %q has no sequence suffix", name)
	}
	return strconv.Atoi(normalizeSuffix(name[dot+1:]))
}
