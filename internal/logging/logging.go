// Package logging provides the daemon's structured logger and the
// per-request tag convention carried over from the original log_setrequest
// behavior: every log line emitted while handling one request includes a
// short description of what the request was for.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the sink every other package logs through.
type Logger struct {
	zl zerolog.Logger
}

// Options controls sink construction.
type Options struct {
	Debug      bool
	Foreground bool
}

// New builds a Logger writing to stderr. In foreground mode it uses
// zerolog's human-readable console writer; otherwise compact JSON, suitable
// for a syslog/journal sink.
func New(opts Options) *Logger {
	var w io.Writer = os.Stderr
	if opts.Foreground {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()

	return &Logger{zl: zl}
}

// Base returns the underlying zerolog.Logger for packages that want full
// control over field construction.
func (l *Logger) Base() zerolog.Logger { return l.zl }

// RequestScope is a Logger bound to one request's descriptive tag, mirroring
// nslcd's log_setrequest: every line logged through it carries a "request"
// field until the handler returns.
type RequestScope struct {
	zl zerolog.Logger
}

// Scope starts a RequestScope tagged with the given description, e.g.
// `passwd="alice"` or `group(bygid)=1000`.
func (l *Logger) Scope(tag string) *RequestScope {
	return &RequestScope{zl: l.zl.With().Str("request", tag).Logger()}
}

func (r *RequestScope) Debug() *zerolog.Event { return r.zl.Debug() }
func (r *RequestScope) Info() *zerolog.Event  { return r.zl.Info() }
func (r *RequestScope) Warn() *zerolog.Event  { return r.zl.Warn() }
func (r *RequestScope) Error() *zerolog.Event { return r.zl.Error() }
