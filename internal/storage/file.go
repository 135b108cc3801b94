package storage

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/bookharvest/internal/types"
)

// utf8BOM marks CSV output as UTF-8 for spreadsheet applications.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// atomicFile is written under a temporary name and renamed into place on
// commit, so readers never observe a half-written file.
type atomicFile struct {
	path string
	tmp  *os.File
}

func createAtomic(path string) (*atomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &atomicFile{path: path, tmp: tmp}, nil
}

func (a *atomicFile) Write(p []byte) (int, error) { return a.tmp.Write(p) }

func (a *atomicFile) commit() error {
	if err := a.tmp.Close(); err != nil {
		_ = os.Remove(a.tmp.Name())
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		_ = os.Remove(a.tmp.Name())
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}

func (a *atomicFile) abort() {
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}

// --- JSONL Storage ---

// JSONLStorage writes records as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	file   *atomicFile
	buf    *bufio.Writer
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	err    error
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	f, err := createAtomic(outputPath)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		buf:    buf,
		enc:    json.NewEncoder(buf),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(records []types.BookRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.Authors == nil {
			rec.Authors = []string{}
		}
		if err := s.enc.Encode(rec); err != nil {
			s.err = err
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = s.buf.Flush()
	}
	if s.err != nil {
		s.file.abort()
		return fmt.Errorf("write JSONL: %w", s.err)
	}
	if err := s.file.commit(); err != nil {
		return err
	}
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	return nil
}

// --- CSV Storage ---

// CSVStorage writes records as CSV rows in types.Columns order, preceded by
// a UTF-8 byte order mark and a header row.
type CSVStorage struct {
	path   string
	file   *atomicFile
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	f, err := createAtomic(outputPath)
	if err != nil {
		return nil, err
	}

	s := &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_storage"),
	}

	if _, err := f.Write(utf8BOM); err != nil {
		f.abort()
		return nil, fmt.Errorf("write BOM: %w", err)
	}
	if err := s.writer.Write(types.Columns); err != nil {
		f.abort()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return s, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(records []types.BookRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if err := s.writer.Write(rec.ToRow()); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.abort()
		return fmt.Errorf("flush CSV: %w", err)
	}
	if err := s.file.commit(); err != nil {
		return err
	}
	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	return nil
}

// ReadCSV loads records written by CSVStorage. The byte order mark is
// optional and the header must match types.Columns. Record IDs follow row
// order.
func ReadCSV(path string) ([]types.BookRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV: %w", err)
	}
	defer f.Close()
	return decodeCSV(f)
}

func decodeCSV(r io.Reader) ([]types.BookRecord, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(types.Columns)

	header, err := cr.Read()
	if err == io.EOF {
		return []types.BookRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	for i, col := range types.Columns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected CSV header %v, want %v", header, types.Columns)
		}
	}

	records := []types.BookRecord{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row %d: %w", len(records)+1, err)
		}
		rec, err := types.BookRecordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", len(records)+1, err)
		}
		rec.ID = len(records)
		records = append(records, rec)
	}
	return records, nil
}
