package ledger

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// Headers are the ledger columns, in file order.
var Headers = []string{
	"timestamp",
	"merchant",
	"category",
	"item",
	"amount",
	"currency",
	"confidence",
	"notes",
	"source",
	"reference_id",
}

const (
	// MerchantPlaceholder is written when a payload carries no merchant.
	MerchantPlaceholder = "-"

	// NotesSeparator joins payload notes into a single column.
	NotesSeparator = " | "

	// TimestampFormat is ISO-8601 with up to microsecond precision.
	TimestampFormat = "2006-01-02T15:04:05.999999Z07:00"
)

// Record is one ledger row keyed by header name.
type Record map[string]string

// Store is an append-only CSV ledger. Writers targeting the same path are
// serialized; different paths proceed independently.
type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewStore creates a ledger store that stamps rows with the current UTC time
// when a payload carries no transaction time.
func NewStore() *Store {
	return &Store{
		locks: make(map[string]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// pathLock returns the mutex guarding one ledger file.
func (s *Store) pathLock(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Ensure creates the ledger file with its header row if it does not exist yet.
// Calling it on an initialized ledger is a no-op.
func (s *Store) Ensure(path string) error {
	l := s.pathLock(path)
	l.Lock()
	defer l.Unlock()

	return ensure(path)
}

func ensure(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: ensure: create parent dir: %v", receipt.ErrLedgerWrite, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: ensure: create %s: %v", receipt.ErrLedgerWrite, path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Headers); err != nil {
		return fmt.Errorf("%w: ensure: encode header: %v", receipt.ErrLedgerWrite, err)
	}
	w.Flush()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: ensure: write header: %v", receipt.ErrLedgerWrite, err)
	}
	return nil
}

// Append writes one row per payload item as a single contiguous block and
// returns the file's line count before the write (at least 1, the header).
// A payload with no items writes nothing but still reports the row index.
func (s *Store) Append(path string, payload *receipt.ReceiptPayload) (int, error) {
	if payload == nil {
		return 0, fmt.Errorf("%w: append: nil payload", receipt.ErrLedgerWrite)
	}

	l := s.pathLock(path)
	l.Lock()
	defer l.Unlock()

	if err := ensure(path); err != nil {
		return 0, err
	}

	ts := s.now()
	if payload.TransactionTime != nil {
		ts = *payload.TransactionTime
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, item := range payload.Items {
		if err := w.Write(buildRow(ts, payload, item)); err != nil {
			return 0, fmt.Errorf("%w: append: encode row %q: %v", receipt.ErrLedgerWrite, item.Label, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("%w: append: flush rows: %v", receipt.ErrLedgerWrite, err)
	}

	lines, err := countLines(path)
	if err != nil {
		return 0, fmt.Errorf("%w: append: count lines: %v", receipt.ErrLedgerWrite, err)
	}
	rowIndex := max(lines, 1)

	if buf.Len() == 0 {
		return rowIndex, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: append: open %s: %v", receipt.ErrLedgerWrite, path, err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("%w: append: write rows: %v", receipt.ErrLedgerWrite, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("%w: append: sync: %v", receipt.ErrLedgerWrite, err)
	}

	return rowIndex, nil
}

// Read returns every data row in file order. A missing ledger yields an empty
// slice and is not created.
func (s *Store) Read(path string) ([]Record, error) {
	l := s.pathLock(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Read: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Read: header: %w", err)
	}

	records := []Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Read: row %d: %w", len(records)+1, err)
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func buildRow(ts time.Time, payload *receipt.ReceiptPayload, item receipt.ExpenseLineItem) []string {
	merchant := payload.Merchant
	if strings.TrimSpace(merchant) == "" {
		merchant = MerchantPlaceholder
	}

	row := []string{
		ts.Format(TimestampFormat),
		merchant,
		item.Category,
		item.Label,
		item.Amount.StringFixed(2),
		payload.Currency,
		FormatConfidence(item.Confidence),
		strings.Join(payload.Notes, NotesSeparator),
		payload.SourceOrDefault(),
		payload.ReferenceID,
	}
	for i, cell := range row {
		row[i] = lineBreaks.Replace(cell)
	}
	return row
}

// lineBreaks keeps every record on one physical line, so line counts and
// record positions agree.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FormatConfidence renders a confidence score with two decimals.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

// countLines counts newline-terminated lines, plus a trailing unterminated one.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	buf := make([]byte, 32*1024)
	count := 0
	var last byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != 0 && last != '\n' {
		count++
	}
	return count, nil
}
