package attendance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/your-org/attend/internal/models"
)

// LedgerTimeLayout is the timestamp format of the Time column.
const LedgerTimeLayout = "2006-01-02 15:04:05"

var ledgerHeader = []string{"Name", "Time"}

// LedgerEntry is one row of the CSV ledger.
type LedgerEntry struct {
	Name string
	Time time.Time
}

// Ledger is an append-only CSV file with a Name,Time header.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates the file with its header if it does not exist yet.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	return l, f.Close()
}

func (l *Ledger) Path() string {
	return l.path
}

// Append implements Sink.
func (l *Ledger) Append(_ context.Context, rec models.AttendanceRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{rec.PersonName, rec.MarkedAt.Format(LedgerTimeLayout)}); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Entries reads every row of the ledger.
func (l *Ledger) Entries() ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	return ReadLedger(f)
}

// open opens the ledger for appending, writing the header into a new file.
func (l *Ledger) open() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		_ = w.Write(ledgerHeader)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
	}
	return f, nil
}

// ReadLedger parses ledger rows, skipping the header. Times are read in the
// local zone, matching how they were written.
func ReadLedger(r io.Reader) ([]LedgerEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	var entries []LedgerEntry
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		if line == 1 && row[0] == ledgerHeader[0] && row[1] == ledgerHeader[1] {
			continue
		}
		ts, err := time.ParseInLocation(LedgerTimeLayout, row[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		entries = append(entries, LedgerEntry{Name: row[0], Time: ts})
	}
}
