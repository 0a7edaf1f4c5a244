// Package audit provides optional batched CSV logging of failed PAM
// authc/authz/pwmod attempts, for operators who want a local audit trail
// independent of the structured daemon log. Adapted from the teacher's
// internal/fail batched-channel failure logger.
package audit

import (
	"encoding/csv"
	"os"
	"sync"
	"time"
)

// Record describes one failed PAM action.
type Record struct {
	Timestamp time.Time
	Action    string // authc|authz|pwmod
	Username  string
	RHost     string
	Status    string
	Message   string
}

// Logger writes Records to a CSV file in batches.
type Logger struct {
	path   string
	batch  int
	ch     chan Record
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Logger. When path is empty, returns nil so callers can log
// through a nil-safe *Logger unconditionally.
func New(path string, batch int) *Logger {
	if path == "" {
		return nil
	}

	if batch <= 0 {
		batch = 256
	}

	l := &Logger{path: path, batch: batch, ch: make(chan Record, batch*4), stopCh: make(chan struct{})}
	l.wg.Add(1)
	go l.run()

	return l
}

// Log queues a record for writing; it drops the record under backpressure
// rather than blocking the worker handling the request.
func (l *Logger) Log(rec Record) {
	if l == nil {
		return
	}

	select {
	case l.ch <- rec:
	default:
	}
}

// Close flushes and stops the logger.
func (l *Logger) Close() {
	if l == nil {
		return
	}

	close(l.stopCh)
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		<-l.stopCh
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "action", "username", "rhost", "status", "message"})
	w.Flush()

	buf := make([]Record, 0, l.batch)
	flush := func() {
		if len(buf) == 0 {
			return
		}

		for _, r := range buf {
			_ = w.Write([]string{
				r.Timestamp.Format(time.RFC3339Nano), r.Action, r.Username, r.RHost, r.Status, r.Message,
			})
		}

		w.Flush()
		buf = buf[:0]
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			for {
				select {
				case r := <-l.ch:
					buf = append(buf, r)
					if len(buf) >= l.batch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= l.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
