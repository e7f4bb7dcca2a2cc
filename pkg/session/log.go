package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Kind tags a failure record with what went wrong.
type Kind string

const (
	// KindTransferFailed is one failed attempt to transfer one file.
	KindTransferFailed Kind = "TransferFailed"

	// KindSyncFailed is one failed attempt to transfer a whole tree.
	KindSyncFailed Kind = "SyncFailed"

	// KindCritical means a task exhausted its entire retry budget.
	KindCritical Kind = "Critical"

	// KindSourceMissing means a configured source directory doesn't exist
	// locally and was skipped.
	KindSourceMissing Kind = "SourceMissing"
)

// Record is one failure event.
type Record struct {
	Time    time.Time
	Subject string
	Kind    Kind
}

// ErrorLog accumulates failure records over one session. It's append-only
// while the session runs and written out once at the end; it's never read
// back. Appends are safe from concurrent transfer workers.
type ErrorLog struct {
	clock clockwork.Clock

	mu      gosync.Mutex
	records []Record
}

// NewErrorLog returns an empty log. A nil clock means the real clock.
func NewErrorLog(clock clockwork.Clock) *ErrorLog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ErrorLog{clock: clock}
}

// Append records a failure event.
func (l *ErrorLog) Append(kind Kind, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{
		Time:    l.clock.Now(),
		Subject: subject,
		Kind:    kind,
	})
}

// Records returns a copy of the accumulated records in append order.
func (l *ErrorLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record{}, l.records...)
}

// Counts returns the number of records per kind.
func (l *ErrorLog) Counts() map[Kind]int {
	counts := map[Kind]int{}
	for _, record := range l.Records() {
		counts[record.Kind]++
	}
	return counts
}

// Empty reports whether the session recorded no failures.
func (l *ErrorLog) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records) == 0
}

// Write emits one human-readable line per record.
func (l *ErrorLog) Write(w io.Writer) error {
	for _, record := range l.Records() {
		_, err := fmt.Fprintf(w, "%s %s %s\n",
			record.Time.Format(time.RFC3339), record.Kind, record.Subject)
		if err != nil {
			return errors.WithContext(err, "write record")
		}
	}
	return nil
}

// WriteFile appends the session's records to the durable error log at `path`.
func (l *ErrorLog) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.WithContext(err, "create log directory")
		}
	}

	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithContext(err, "open log")
	}
	defer f.Close()

	return l.Write(f)
}
